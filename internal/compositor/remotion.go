package compositor

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// compositionRow matches one line of `remotion compositions` output:
// "<id>  <fps>  <w>x<h>  <frames> (<seconds> sec)".
var compositionRow = regexp.MustCompile(`^\s*([A-Za-z0-9\-]+)\s+(\d+)\s+(\d+)x(\d+)\s+(\d+)`)

// RemotionConfig configures the Remotion CLI engine.
type RemotionConfig struct {
	NpxPath    string
	EntryPoint string
	WorkDir    string
	Codec      string
}

// RemotionEngine shells out to the Remotion CLI through npx.
type RemotionEngine struct {
	cfg    RemotionConfig
	runner Runner
}

func NewRemotionEngine(cfg RemotionConfig, runner Runner) *RemotionEngine {
	if cfg.NpxPath == "" {
		cfg.NpxPath = "npx"
	}
	if cfg.Codec == "" {
		cfg.Codec = "h264"
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &RemotionEngine{cfg: cfg, runner: runner}
}

func (e *RemotionEngine) Name() string { return "remotion" }

func (e *RemotionEngine) Bundle(ctx context.Context) (ServeLocation, error) {
	if err := os.MkdirAll(e.cfg.WorkDir, 0o755); err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}
	outDir, err := os.MkdirTemp(e.cfg.WorkDir, "bundle-")
	if err != nil {
		return "", fmt.Errorf("create bundle dir: %w", err)
	}

	_, err = e.runner.Run(ctx, e.cfg.NpxPath,
		"remotion", "bundle", e.cfg.EntryPoint,
		"--out-dir", outDir,
	)
	if err != nil {
		os.RemoveAll(outDir)
		return "", err
	}
	return ServeLocation(outDir), nil
}

func (e *RemotionEngine) Compositions(ctx context.Context, loc ServeLocation, props InputProps) ([]Composition, error) {
	propsPath, err := writeProps(e.cfg.WorkDir, props)
	if err != nil {
		return nil, err
	}
	defer os.Remove(propsPath)

	res, err := e.runner.Run(ctx, e.cfg.NpxPath,
		"remotion", "compositions", string(loc),
		"--props="+propsPath,
	)
	if err != nil {
		return nil, err
	}
	return parseCompositions(res.Stdout), nil
}

func (e *RemotionEngine) Render(ctx context.Context, loc ServeLocation, comp Composition, props InputProps, outputPath string) error {
	propsPath, err := writeProps(e.cfg.WorkDir, props)
	if err != nil {
		return err
	}
	defer os.Remove(propsPath)

	_, err = e.runner.Run(ctx, e.cfg.NpxPath,
		"remotion", "render", string(loc), comp.ID, outputPath,
		"--props="+propsPath,
		"--codec="+e.cfg.Codec,
		"--overwrite",
	)
	return err
}

// parseCompositions extracts composition rows from CLI output, skipping
// headers and log noise.
func parseCompositions(out string) []Composition {
	var comps []Composition
	for _, line := range strings.Split(out, "\n") {
		m := compositionRow.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		fps, _ := strconv.Atoi(m[2])
		width, _ := strconv.Atoi(m[3])
		height, _ := strconv.Atoi(m[4])
		frames, _ := strconv.Atoi(m[5])
		comps = append(comps, Composition{
			ID:               m[1],
			FPS:              fps,
			Width:            width,
			Height:           height,
			DurationInFrames: frames,
		})
	}
	return comps
}
