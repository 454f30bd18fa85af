package compositor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/iamstudio/brandrender/internal/model"
)

const (
	manifestFile = "compositions.json"

	defaultFPS    = 30
	defaultFrames = 120
)

// FFmpegConfig configures the ffmpeg placeholder engine.
type FFmpegConfig struct {
	FFmpegPath string
	WorkDir    string
}

// FFmpegEngine renders a flat card with the copy drawn on the palette
// background. Its bundle is a manifest of every template and format pair.
type FFmpegEngine struct {
	cfg    FFmpegConfig
	runner Runner
}

func NewFFmpegEngine(cfg FFmpegConfig, runner Runner) *FFmpegEngine {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &FFmpegEngine{cfg: cfg, runner: runner}
}

func (e *FFmpegEngine) Name() string { return "ffmpeg" }

// Catalog lists the compositions for every known template and format.
func Catalog() []Composition {
	comps := make([]Composition, 0, len(model.Templates)*len(model.Formats))
	for _, tpl := range model.Templates {
		for _, f := range model.Formats {
			comps = append(comps, Composition{
				ID:               CompositionID(tpl.ID, f.Key),
				Width:            f.Width,
				Height:           f.Height,
				FPS:              defaultFPS,
				DurationInFrames: defaultFrames,
			})
		}
	}
	return comps
}

func (e *FFmpegEngine) Bundle(ctx context.Context) (ServeLocation, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(e.cfg.WorkDir, 0o755); err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}
	dir, err := os.MkdirTemp(e.cfg.WorkDir, "bundle-")
	if err != nil {
		return "", fmt.Errorf("create bundle dir: %w", err)
	}

	data, err := json.MarshalIndent(Catalog(), "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(dir, manifestFile), data, 0o644); err != nil {
		os.RemoveAll(dir)
		return "", fmt.Errorf("write manifest: %w", err)
	}
	return ServeLocation(dir), nil
}

func (e *FFmpegEngine) Compositions(ctx context.Context, loc ServeLocation, _ InputProps) ([]Composition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(string(loc), manifestFile))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var comps []Composition
	if err := json.Unmarshal(data, &comps); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return comps, nil
}

func (e *FFmpegEngine) Render(ctx context.Context, _ ServeLocation, comp Composition, props InputProps, outputPath string) error {
	if err := os.MkdirAll(e.cfg.WorkDir, 0o755); err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}
	textDir, err := os.MkdirTemp(e.cfg.WorkDir, "text-")
	if err != nil {
		return fmt.Errorf("create text dir: %w", err)
	}
	defer os.RemoveAll(textDir)

	headlinePath := filepath.Join(textDir, "headline.txt")
	subheadPath := filepath.Join(textDir, "subheadline.txt")
	if err := os.WriteFile(headlinePath, []byte(props.Headline), 0o644); err != nil {
		return err
	}
	if err := os.WriteFile(subheadPath, []byte(props.Subheadline), 0o644); err != nil {
		return err
	}

	fps := comp.FPS
	if fps <= 0 {
		fps = defaultFPS
	}
	frames := comp.DurationInFrames
	if frames <= 0 {
		frames = defaultFrames
	}
	seconds := float64(frames) / float64(fps)

	headlineSize := comp.Height / 12
	if w := comp.Width / 14; w < headlineSize {
		headlineSize = w
	}
	subheadSize := headlineSize / 2

	source := fmt.Sprintf("color=c=%s:s=%dx%d:r=%d:d=%s",
		ffmpegColor(props.Palette.Background), comp.Width, comp.Height, fps,
		strconv.FormatFloat(seconds, 'f', 3, 64))

	filter := strings.Join([]string{
		drawText(headlinePath, props.Palette.Headline, headlineSize, "(h-text_h)/2-"+strconv.Itoa(headlineSize/2)),
		drawText(subheadPath, props.Palette.Subheadline, subheadSize, "(h-text_h)/2+"+strconv.Itoa(headlineSize)),
	}, ",")

	_, err = e.runner.Run(ctx, e.cfg.FFmpegPath,
		"-y",
		"-f", "lavfi", "-i", source,
		"-vf", filter,
		"-frames:v", strconv.Itoa(frames),
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		outputPath,
	)
	return err
}

func drawText(textFile, color string, size int, y string) string {
	return fmt.Sprintf("drawtext=textfile='%s':fontcolor=%s:fontsize=%d:x=(w-text_w)/2:y=%s",
		escapeFilterValue(textFile), ffmpegColor(color), size, y)
}

// ffmpegColor converts "#rrggbb" to ffmpeg's "0xrrggbb".
func ffmpegColor(hex string) string {
	if strings.HasPrefix(hex, "#") {
		return "0x" + hex[1:]
	}
	if hex == "" {
		return "black"
	}
	return hex
}

func escapeFilterValue(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `'\''`, `:`, `\:`)
	return r.Replace(s)
}
