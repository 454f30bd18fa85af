// Package compositor drives the external tool that turns a template project
// into video. An Engine bundles the project once, lists the compositions the
// bundle exposes and renders one composition to a file.
package compositor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/iamstudio/brandrender/internal/model"
)

// ServeLocation identifies a built bundle. For Remotion it is the bundle
// directory, for the ffmpeg engine the directory holding the manifest.
type ServeLocation string

// Composition is one renderable unit exposed by a bundle.
type Composition struct {
	ID               string `json:"id"`
	Width            int    `json:"width"`
	Height           int    `json:"height"`
	FPS              int    `json:"fps"`
	DurationInFrames int    `json:"durationInFrames"`
}

// InputProps are the values injected into a composition at render time.
type InputProps struct {
	Headline    string        `json:"headline"`
	Subheadline string        `json:"subheadline"`
	Body        string        `json:"body"`
	PaletteKey  string        `json:"paletteKey"`
	MotionStyle string        `json:"motionStyle"`
	Palette     model.Palette `json:"palette"`
}

// PropsFor builds the input props for a render request.
func PropsFor(req model.RenderRequest) InputProps {
	return InputProps{
		Headline:    req.Content.Headline,
		Subheadline: req.Content.Subheadline,
		Body:        req.Content.Body,
		PaletteKey:  req.PaletteKey,
		MotionStyle: req.MotionStyle,
		Palette:     model.PaletteFor(req.PaletteKey),
	}
}

// Engine is implemented by every rendering backend.
type Engine interface {
	Name() string
	// Bundle builds the template project. It is expensive and its result is
	// reused for every later job.
	Bundle(ctx context.Context) (ServeLocation, error)
	Compositions(ctx context.Context, loc ServeLocation, props InputProps) ([]Composition, error)
	// Render writes the composition to outputPath.
	Render(ctx context.Context, loc ServeLocation, comp Composition, props InputProps, outputPath string) error
}

// CompositionID derives the composition id for a template and format.
// Underscores become hyphens in both parts: ("template-01", "ig_post_1_1")
// maps to "template-01-ig-post-1-1".
func CompositionID(templateID, formatKey string) string {
	return normalizeID(templateID) + "-" + normalizeID(formatKey)
}

func normalizeID(s string) string {
	return strings.ReplaceAll(s, "_", "-")
}

// writeProps stores props as JSON in dir and returns the file path.
func writeProps(dir string, props InputProps) (string, error) {
	data, err := json.Marshal(props)
	if err != nil {
		return "", fmt.Errorf("encode props: %w", err)
	}
	f, err := os.CreateTemp(dir, "props-*.json")
	if err != nil {
		return "", fmt.Errorf("create props file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("write props file: %w", err)
	}
	return filepath.Clean(f.Name()), nil
}
