package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/iamstudio/brandrender/internal/artifact"
	"github.com/iamstudio/brandrender/internal/compositor"
	"github.com/iamstudio/brandrender/internal/logging"
	"github.com/iamstudio/brandrender/internal/model"
	"github.com/iamstudio/brandrender/internal/render"
	"github.com/iamstudio/brandrender/internal/store"
)

// RenderWorker runs one job through bundling, composition lookup, rendering
// and artifact upload, recording every step on the job.
type RenderWorker struct {
	store     store.JobStore
	cache     *render.CompositionCache
	resolver  *render.CompositionResolver
	executor  *render.RenderExecutor
	artifacts artifact.Store
	workDir   string
	log       zerolog.Logger
}

// NewRenderWorker creates a new render worker
func NewRenderWorker(
	jobs store.JobStore,
	cache *render.CompositionCache,
	resolver *render.CompositionResolver,
	executor *render.RenderExecutor,
	artifacts artifact.Store,
	workDir string,
	logger zerolog.Logger,
) *RenderWorker {
	return &RenderWorker{
		store:     jobs,
		cache:     cache,
		resolver:  resolver,
		executor:  executor,
		artifacts: artifacts,
		workDir:   workDir,
		log:       logging.WithComponent(logger, "worker"),
	}
}

// Process executes the job. Render failures end up on the job record and are
// not returned; an error means the job record itself could not be updated.
func (w *RenderWorker) Process(ctx context.Context, jobID string) (err error) {
	log := logging.WithJob(w.log, jobID)

	job, err := w.store.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Warn().Msg("job vanished before it could run")
			return nil
		}
		return fmt.Errorf("load job %s: %w", jobID, err)
	}
	if job.Status != model.JobStatusQueued {
		log.Warn().Str("status", string(job.Status)).Msg("skipping job that is not queued")
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			err = w.fail(ctx, log, jobID, fmt.Errorf("internal error: %v", r))
		}
	}()

	started := time.Now()
	log.Info().
		Str("template_id", job.Request.TemplateID).
		Str("format_key", job.Request.FormatKey).
		Msg("render job started")

	if err := w.advance(ctx, jobID, model.PhaseBundling); err != nil {
		return err
	}
	loc, err := w.cache.Ensure(ctx)
	if err != nil {
		return w.fail(ctx, log, jobID, err)
	}

	if err := w.advance(ctx, jobID, model.PhaseResolvingComposition); err != nil {
		return err
	}
	comp, err := w.resolver.Resolve(ctx, loc, job.Request)
	if err != nil {
		return w.fail(ctx, log, jobID, err)
	}

	if err := w.advance(ctx, jobID, model.PhaseRendering); err != nil {
		return err
	}
	ref, err := w.renderAndStore(ctx, jobID, loc, comp, compositor.PropsFor(job.Request))
	if err != nil {
		return w.fail(ctx, log, jobID, err)
	}

	if _, err := w.store.Patch(context.WithoutCancel(ctx), jobID, model.DonePatch(ref)); err != nil {
		return fmt.Errorf("complete job %s: %w", jobID, err)
	}

	log.Info().
		Str("composition", comp.ID).
		Str("output_ref", ref).
		Dur("elapsed", time.Since(started)).
		Msg("render job completed")
	return nil
}

// renderAndStore renders into a private scratch directory and publishes the
// finished file to the artifact store.
func (w *RenderWorker) renderAndStore(ctx context.Context, jobID string, loc compositor.ServeLocation, comp compositor.Composition, props compositor.InputProps) (string, error) {
	if err := os.MkdirAll(w.workDir, 0o755); err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}
	dir, err := os.MkdirTemp(w.workDir, "job-"+jobID+"-")
	if err != nil {
		return "", fmt.Errorf("create job dir: %w", err)
	}
	defer os.RemoveAll(dir)

	out := filepath.Join(dir, "out.mp4")
	if err := w.executor.Run(ctx, loc, comp, props, out); err != nil {
		return "", err
	}

	ref, err := w.artifacts.Put(ctx, jobID+".mp4", out)
	if err != nil {
		return "", fmt.Errorf("store artifact: %w", err)
	}
	return ref, nil
}

func (w *RenderWorker) advance(ctx context.Context, jobID string, phase model.JobPhase) error {
	if _, err := w.store.Patch(ctx, jobID, model.PhasePatch(phase)); err != nil {
		return fmt.Errorf("move job %s to %s: %w", jobID, phase, err)
	}
	w.log.Debug().Str("job_id", jobID).Str("phase", string(phase)).Msg("phase changed")
	return nil
}

// fail records cause as the job's terminal error. It still writes when ctx
// is already cancelled so a shutdown never leaves a job running forever.
func (w *RenderWorker) fail(ctx context.Context, log zerolog.Logger, jobID string, cause error) error {
	log.Error().Err(cause).Msg("render job failed")

	if _, err := w.store.Patch(context.WithoutCancel(ctx), jobID, model.ErrorPatch(cause.Error())); err != nil {
		return fmt.Errorf("fail job %s: %w", jobID, err)
	}
	return nil
}
