package service

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/iamstudio/brandrender/internal/artifact"
	"github.com/iamstudio/brandrender/internal/logging"
	"github.com/iamstudio/brandrender/internal/store"
)

// Janitor deletes finished jobs and their artifacts once they are older
// than the retention.
type Janitor struct {
	store     store.JobStore
	artifacts artifact.Store
	retention time.Duration
	now       func() time.Time
	log       zerolog.Logger
}

func NewJanitor(jobs store.JobStore, artifacts artifact.Store, retention time.Duration, logger zerolog.Logger) *Janitor {
	return &Janitor{
		store:     jobs,
		artifacts: artifacts,
		retention: retention,
		now:       time.Now,
		log:       logging.WithComponent(logger, "janitor"),
	}
}

// Sweep removes expired jobs and returns how many were deleted.
func (j *Janitor) Sweep(ctx context.Context) (int, error) {
	cutoff := j.now().Add(-j.retention)
	expired, err := j.store.ListTerminalBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, job := range expired {
		if job.OutputRef != "" {
			if err := j.artifacts.Delete(ctx, job.OutputRef); err != nil && !errors.Is(err, artifact.ErrNotFound) {
				j.log.Warn().Err(err).Str("job_id", job.ID).Msg("failed to delete artifact")
				continue
			}
		}
		if err := j.store.Delete(ctx, job.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			j.log.Warn().Err(err).Str("job_id", job.ID).Msg("failed to delete job")
			continue
		}
		removed++
	}

	if removed > 0 {
		j.log.Info().Int("removed", removed).Time("cutoff", cutoff).Msg("expired jobs removed")
	}
	return removed, nil
}

// Start schedules Sweep and returns the running scheduler. Stop it with
// cron.Stop on shutdown.
func (j *Janitor) Start(ctx context.Context, schedule string) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		if _, err := j.Sweep(ctx); err != nil {
			j.log.Error().Err(err).Msg("retention sweep failed")
		}
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}
