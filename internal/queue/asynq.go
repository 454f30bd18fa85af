package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/iamstudio/brandrender/internal/logging"
)

const (
	TaskTypeRender = "render:process"
	QueueName      = "render"
)

type renderTaskPayload struct {
	JobID string `json:"jobId"`
}

// AsynqConfig configures the Redis backed queue.
type AsynqConfig struct {
	MaxDepth int
	// TaskTimeout bounds one job end to end, bundling included.
	TaskTimeout time.Duration
	// Retention keeps completed task metadata for inspection.
	Retention time.Duration
}

// AsynqQueue stores pending jobs in Redis through asynq. The server runs
// with a concurrency of one and no retries, so jobs start in FIFO order and
// at most once.
type AsynqQueue struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	server    *asynq.Server
	handler   Handler
	cfg       AsynqConfig
	log       zerolog.Logger
}

func NewAsynqQueue(opt asynq.RedisClientOpt, handler Handler, cfg AsynqConfig, logger zerolog.Logger) *AsynqQueue {
	log := logger.With().Str("component", "queue").Logger()
	return &AsynqQueue{
		client:    asynq.NewClient(opt),
		inspector: asynq.NewInspector(opt),
		server: asynq.NewServer(opt, asynq.Config{
			Concurrency: 1,
			Queues:      map[string]int{QueueName: 1},
			Logger:      logging.AsynqLogger{L: log},
			LogLevel:    asynq.WarnLevel,
		}),
		handler: handler,
		cfg:     cfg,
		log:     log,
	}
}

// NewRenderTask builds the asynq task for a job.
func NewRenderTask(jobID string) (*asynq.Task, error) {
	data, err := json.Marshal(renderTaskPayload{JobID: jobID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeRender, data), nil
}

func (q *AsynqQueue) Submit(ctx context.Context, jobID string) error {
	if q.cfg.MaxDepth > 0 {
		depth, err := q.Depth(ctx)
		if err != nil {
			return err
		}
		if depth >= q.cfg.MaxDepth {
			return ErrQueueFull
		}
	}

	task, err := NewRenderTask(jobID)
	if err != nil {
		return err
	}

	opts := []asynq.Option{
		asynq.Queue(QueueName),
		asynq.MaxRetry(0),
		asynq.TaskID(jobID),
	}
	if q.cfg.TaskTimeout > 0 {
		opts = append(opts, asynq.Timeout(q.cfg.TaskTimeout))
	}
	if q.cfg.Retention > 0 {
		opts = append(opts, asynq.Retention(q.cfg.Retention))
	}

	info, err := q.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return fmt.Errorf("enqueue render task: %w", err)
	}
	q.log.Debug().Str("job_id", jobID).Str("task_id", info.ID).Msg("job queued")
	return nil
}

func (q *AsynqQueue) Depth(context.Context) (int, error) {
	info, err := q.inspector.GetQueueInfo(QueueName)
	if err != nil {
		if errors.Is(err, asynq.ErrQueueNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return info.Pending, nil
}

// ProcessTask is the asynq handler for TaskTypeRender.
func (q *AsynqQueue) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload renderTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.JobID == "" {
		return fmt.Errorf("invalid render task payload: %w", asynq.SkipRetry)
	}

	if err := q.handler(ctx, payload.JobID); err != nil {
		q.log.Error().Err(err).Str("job_id", payload.JobID).Msg("render handler failed")
		return err
	}
	return nil
}

func (q *AsynqQueue) Run(ctx context.Context) error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypeRender, q.ProcessTask)

	if err := q.server.Start(mux); err != nil {
		return fmt.Errorf("start asynq server: %w", err)
	}
	q.log.Info().Msg("render worker started")

	<-ctx.Done()
	q.server.Shutdown()
	q.log.Info().Msg("render worker stopped")
	return nil
}

// Close releases the Redis connections held by the producer side.
func (q *AsynqQueue) Close() error {
	return errors.Join(q.client.Close(), q.inspector.Close())
}
