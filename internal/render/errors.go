package render

import (
	"fmt"
	"strings"
	"time"
)

// maxListedCompositions bounds the ids quoted in CompositionNotFoundError.
const maxListedCompositions = 10

// BundleError is returned when building the template bundle fails.
type BundleError struct {
	Err error
}

func (e *BundleError) Error() string {
	return fmt.Sprintf("bundle failed: %v", e.Err)
}

func (e *BundleError) Unwrap() error { return e.Err }

// CompositionNotFoundError is returned when the bundle has no composition
// for the requested template and format.
type CompositionNotFoundError struct {
	ID string
	// Available is a sorted sample of the ids the bundle does expose.
	Available []string
	Total     int
}

func (e *CompositionNotFoundError) Error() string {
	if e.Total == 0 {
		return fmt.Sprintf("composition %q not found: bundle exposes no compositions", e.ID)
	}
	return fmt.Sprintf("composition %q not found. Available (%d of %d): %s",
		e.ID, len(e.Available), e.Total, strings.Join(e.Available, ", "))
}

// RenderTimeoutError is returned when a render exceeds its wall-clock budget.
type RenderTimeoutError struct {
	Timeout time.Duration
}

func (e *RenderTimeoutError) Error() string {
	return fmt.Sprintf("render timeout: exceeded %s", e.Timeout)
}

// RenderExecutionError wraps any other render or encode failure.
type RenderExecutionError struct {
	Err error
}

func (e *RenderExecutionError) Error() string {
	return fmt.Sprintf("render failed: %v", e.Err)
}

func (e *RenderExecutionError) Unwrap() error { return e.Err }
