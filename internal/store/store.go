package store

import (
	"context"
	"errors"
	"time"

	"github.com/iamstudio/brandrender/internal/model"
)

// ErrNotFound is returned when no job exists for the id.
var ErrNotFound = errors.New("job not found")

// JobStore is the registry of render jobs. Implementations apply patches
// atomically so readers never see a half-written transition.
type JobStore interface {
	// Create registers a new queued job and assigns its id.
	Create(ctx context.Context, req model.RenderRequest) (model.Job, error)
	Get(ctx context.Context, id string) (model.Job, error)
	// Patch applies p to the job. Patching a frozen job is a no-op that
	// returns the stored record unchanged.
	Patch(ctx context.Context, id string, p model.JobPatch) (model.Job, error)
	Delete(ctx context.Context, id string) error
	// ListTerminalBefore returns jobs in Done or Error last updated before cutoff.
	ListTerminalBefore(ctx context.Context, cutoff time.Time) ([]model.Job, error)
}
