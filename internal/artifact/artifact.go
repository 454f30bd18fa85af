// Package artifact stores finished videos and hands them back for download.
package artifact

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when no artifact exists for a reference.
var ErrNotFound = errors.New("artifact not found")

// Store persists rendered files. Put must only make an artifact visible once
// it is completely written.
type Store interface {
	Name() string
	// Put copies the file at srcPath under key and returns an opaque reference.
	Put(ctx context.Context, key, srcPath string) (string, error)
	// Open returns the artifact content and its size in bytes.
	Open(ctx context.Context, ref string) (io.ReadCloser, int64, error)
	Delete(ctx context.Context, ref string) error
}
