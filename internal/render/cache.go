package render

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/iamstudio/brandrender/internal/compositor"
)

const bundleKey = "bundle"

// CompositionCache builds the template bundle once per process. Concurrent
// callers share a single in-flight build; a failed build is not remembered,
// so the next caller starts a fresh one.
type CompositionCache struct {
	engine compositor.Engine
	group  singleflight.Group

	mu  sync.RWMutex
	loc compositor.ServeLocation
}

func NewCompositionCache(engine compositor.Engine) *CompositionCache {
	return &CompositionCache{engine: engine}
}

// Ensure returns the cached serve location, building the bundle if needed.
// A caller whose ctx ends stops waiting; the shared build keeps running for
// the others.
func (c *CompositionCache) Ensure(ctx context.Context) (compositor.ServeLocation, error) {
	if loc, ok := c.cached(); ok {
		return loc, nil
	}

	buildCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(bundleKey, func() (interface{}, error) {
		if loc, ok := c.cached(); ok {
			return loc, nil
		}
		loc, err := c.engine.Bundle(buildCtx)
		if err != nil {
			return nil, &BundleError{Err: err}
		}
		c.mu.Lock()
		c.loc = loc
		c.mu.Unlock()
		return loc, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(compositor.ServeLocation), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Ready reports whether a bundle has been built.
func (c *CompositionCache) Ready() bool {
	_, ok := c.cached()
	return ok
}

func (c *CompositionCache) cached() (compositor.ServeLocation, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loc, c.loc != ""
}
