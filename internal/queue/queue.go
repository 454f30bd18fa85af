// Package queue serializes render jobs. Every backend runs exactly one job
// at a time, in submission order.
package queue

import (
	"context"
	"errors"
)

// ErrQueueFull is returned by Submit when the configured depth is reached.
var ErrQueueFull = errors.New("render queue is full")

// Handler executes one job to completion. Job failures are recorded on the
// job itself; a returned error only reports that the handler could not do so.
type Handler func(ctx context.Context, jobID string) error

// Queue accepts job ids and feeds them to a Handler one by one.
type Queue interface {
	// Submit appends a job without waiting for it to run.
	Submit(ctx context.Context, jobID string) error
	// Depth is the number of jobs waiting to start.
	Depth(ctx context.Context) (int, error)
	// Run drives the worker loop until ctx is cancelled.
	Run(ctx context.Context) error
}
