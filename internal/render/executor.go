package render

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iamstudio/brandrender/internal/compositor"
)

// DefaultTimeout is used when the executor is built with a zero timeout.
const DefaultTimeout = 5 * time.Minute

// RenderExecutor runs one render under a hard wall-clock budget.
type RenderExecutor struct {
	engine  compositor.Engine
	timeout time.Duration
}

func NewRenderExecutor(engine compositor.Engine, timeout time.Duration) *RenderExecutor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &RenderExecutor{engine: engine, timeout: timeout}
}

// Timeout returns the configured budget.
func (e *RenderExecutor) Timeout() time.Duration {
	return e.timeout
}

// Run renders comp to outputPath. It returns at the deadline even if the
// engine does not honour cancellation; the engine's context is cancelled so
// a well-behaved engine kills its child process.
func (e *RenderExecutor) Run(ctx context.Context, loc compositor.ServeLocation, comp compositor.Composition, props compositor.InputProps, outputPath string) error {
	renderCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("engine panic: %v", r)
			}
		}()
		done <- e.engine.Render(renderCtx, loc, comp, props, outputPath)
	}()

	var err error
	select {
	case err = <-done:
	case <-renderCtx.Done():
		err = renderCtx.Err()
	}

	if err == nil {
		return nil
	}
	if errors.Is(renderCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return &RenderTimeoutError{Timeout: e.timeout}
	}
	return &RenderExecutionError{Err: err}
}
