package queue

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/rs/zerolog"
)

// LocalQueue is an in-process FIFO drained by a single worker goroutine.
type LocalQueue struct {
	handler  Handler
	log      zerolog.Logger
	maxDepth int

	mu      sync.Mutex
	pending []string
	notify  chan struct{}
}

// NewLocalQueue builds a queue. maxDepth <= 0 means unbounded.
func NewLocalQueue(handler Handler, maxDepth int, logger zerolog.Logger) *LocalQueue {
	return &LocalQueue{
		handler:  handler,
		log:      logger.With().Str("component", "queue").Logger(),
		maxDepth: maxDepth,
		notify:   make(chan struct{}, 1),
	}
}

func (q *LocalQueue) Submit(_ context.Context, jobID string) error {
	q.mu.Lock()
	if q.maxDepth > 0 && len(q.pending) >= q.maxDepth {
		q.mu.Unlock()
		return ErrQueueFull
	}
	q.pending = append(q.pending, jobID)
	depth := len(q.pending)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}

	q.log.Debug().Str("job_id", jobID).Int("depth", depth).Msg("job queued")
	return nil
}

func (q *LocalQueue) Depth(context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending), nil
}

func (q *LocalQueue) Run(ctx context.Context) error {
	q.log.Info().Msg("render worker started")
	for {
		jobID, ok := q.pop()
		if !ok {
			select {
			case <-ctx.Done():
				q.log.Info().Msg("render worker stopped")
				return nil
			case <-q.notify:
				continue
			}
		}

		if ctx.Err() != nil {
			q.log.Info().Msg("render worker stopped")
			return nil
		}
		q.execute(ctx, jobID)
	}
}

func (q *LocalQueue) pop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return "", false
	}
	jobID := q.pending[0]
	q.pending[0] = ""
	q.pending = q.pending[1:]
	return jobID, true
}

// execute shields the loop from a misbehaving handler.
func (q *LocalQueue) execute(ctx context.Context, jobID string) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Error().
				Str("job_id", jobID).
				Str("panic", fmt.Sprint(r)).
				Bytes("stack", debug.Stack()).
				Msg("render handler panicked")
		}
	}()

	if err := q.handler(ctx, jobID); err != nil {
		q.log.Error().Err(err).Str("job_id", jobID).Msg("render handler failed")
	}
}
