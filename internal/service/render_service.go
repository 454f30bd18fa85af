package service

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/iamstudio/brandrender/internal/artifact"
	"github.com/iamstudio/brandrender/internal/logging"
	"github.com/iamstudio/brandrender/internal/model"
	"github.com/iamstudio/brandrender/internal/queue"
	"github.com/iamstudio/brandrender/internal/store"
)

var (
	// ErrNotFound is returned for unknown jobs and for jobs without a
	// downloadable artifact.
	ErrNotFound = errors.New("job not found")
	// ErrConflict is returned when a download is requested before the job is done.
	ErrConflict = errors.New("job not finished yet")
	// ErrQueueFull is returned when the queue refuses new work.
	ErrQueueFull = queue.ErrQueueFull
)

// Artifact is a finished video ready to be streamed.
type Artifact struct {
	Body     io.ReadCloser
	Size     int64
	Filename string
}

// RenderService is the facade used by the HTTP layer.
type RenderService struct {
	store     store.JobStore
	queue     queue.Queue
	artifacts artifact.Store
	log       zerolog.Logger
}

// NewRenderService creates a new render service
func NewRenderService(jobs store.JobStore, q queue.Queue, artifacts artifact.Store, logger zerolog.Logger) *RenderService {
	return &RenderService{
		store:     jobs,
		queue:     q,
		artifacts: artifacts,
		log:       logging.WithComponent(logger, "service"),
	}
}

// StartRender registers a job and queues it. It returns as soon as the job
// is queued; a job that could not be queued is removed again.
func (s *RenderService) StartRender(ctx context.Context, req model.RenderRequest) (string, error) {
	job, err := s.store.Create(ctx, req)
	if err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}

	if err := s.queue.Submit(ctx, job.ID); err != nil {
		if delErr := s.store.Delete(context.WithoutCancel(ctx), job.ID); delErr != nil {
			s.log.Error().Err(delErr).Str("job_id", job.ID).Msg("failed to remove unqueued job")
		}
		if errors.Is(err, queue.ErrQueueFull) {
			return "", ErrQueueFull
		}
		return "", fmt.Errorf("queue job: %w", err)
	}

	s.log.Info().
		Str("job_id", job.ID).
		Str("template_id", req.TemplateID).
		Str("format_key", req.FormatKey).
		Msg("render job accepted")
	return job.ID, nil
}

// GetStatus returns the current job record.
func (s *RenderService) GetStatus(ctx context.Context, jobID string) (model.Job, error) {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.Job{}, ErrNotFound
		}
		return model.Job{}, err
	}
	return job, nil
}

// OpenArtifact returns the rendered video of a finished job. Queued and
// running jobs yield ErrConflict; unknown and failed jobs yield ErrNotFound.
func (s *RenderService) OpenArtifact(ctx context.Context, jobID string) (*Artifact, error) {
	job, err := s.GetStatus(ctx, jobID)
	if err != nil {
		return nil, err
	}

	switch job.Status {
	case model.JobStatusQueued, model.JobStatusRunning:
		return nil, ErrConflict
	case model.JobStatusDone:
	default:
		return nil, ErrNotFound
	}

	body, size, err := s.artifacts.Open(ctx, job.OutputRef)
	if err != nil {
		if errors.Is(err, artifact.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("open artifact: %w", err)
	}

	return &Artifact{
		Body:     body,
		Size:     size,
		Filename: DownloadFilename(job.Request),
	}, nil
}

// QueueDepth reports how many jobs wait to start.
func (s *RenderService) QueueDepth(ctx context.Context) (int, error) {
	return s.queue.Depth(ctx)
}

// DownloadFilename is the attachment name offered to browsers.
func DownloadFilename(req model.RenderRequest) string {
	return fmt.Sprintf("%s_%s.mp4", req.TemplateID, req.FormatKey)
}
