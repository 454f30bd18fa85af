// Package compositortest provides an in-memory compositor.Engine for tests.
package compositortest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/iamstudio/brandrender/internal/compositor"
)

// Engine is a scriptable compositor.Engine. Zero value renders every
// composition returned by Comps and writes "<compositionID>:<headline>" to the
// output file.
type Engine struct {
	Comps []compositor.Composition

	// Hooks override the default behaviour when set.
	BundleFunc func(ctx context.Context) (compositor.ServeLocation, error)
	RenderFunc func(ctx context.Context, comp compositor.Composition, props compositor.InputProps, outputPath string) error

	bundles atomic.Int32

	mu      sync.Mutex
	renders []string
}

// WithCatalog returns an engine exposing the default composition catalog.
func WithCatalog() *Engine {
	return &Engine{Comps: compositor.Catalog()}
}

func (e *Engine) Name() string { return "fake" }

func (e *Engine) Bundle(ctx context.Context) (compositor.ServeLocation, error) {
	e.bundles.Add(1)
	if e.BundleFunc != nil {
		return e.BundleFunc(ctx)
	}
	return "fake://bundle", nil
}

func (e *Engine) Compositions(ctx context.Context, _ compositor.ServeLocation, _ compositor.InputProps) ([]compositor.Composition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.Comps, nil
}

func (e *Engine) Render(ctx context.Context, _ compositor.ServeLocation, comp compositor.Composition, props compositor.InputProps, outputPath string) error {
	e.mu.Lock()
	e.renders = append(e.renders, comp.ID)
	e.mu.Unlock()

	if e.RenderFunc != nil {
		return e.RenderFunc(ctx, comp, props, outputPath)
	}
	return WriteVideo(outputPath, comp, props)
}

// BundleCalls returns how many times Bundle ran.
func (e *Engine) BundleCalls() int {
	return int(e.bundles.Load())
}

// Renders returns the composition ids rendered so far, in call order.
func (e *Engine) Renders() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.renders...)
}

// WriteVideo writes the deterministic fake output for comp and props.
func WriteVideo(outputPath string, comp compositor.Composition, props compositor.InputProps) error {
	return os.WriteFile(outputPath, []byte(fmt.Sprintf("%s:%s", comp.ID, props.Headline)), 0o644)
}

// BlockUntilDone is a RenderFunc that waits for ctx to end.
func BlockUntilDone(ctx context.Context, _ compositor.Composition, _ compositor.InputProps, _ string) error {
	<-ctx.Done()
	return ctx.Err()
}

// ErrRenderFailed is returned by FailRender.
var ErrRenderFailed = errors.New("renderer crashed")

// FailRender is a RenderFunc that always fails.
func FailRender(context.Context, compositor.Composition, compositor.InputProps, string) error {
	return ErrRenderFailed
}
