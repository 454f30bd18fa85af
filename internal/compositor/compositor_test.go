package compositor

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/iamstudio/brandrender/internal/model"
)

// fakeRunner records invocations and delegates to injected behavior.
type fakeRunner struct {
	calls [][]string
	run   func(ctx context.Context, name string, args ...string) (CommandResult, error)
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (CommandResult, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	if f.run == nil {
		return CommandResult{}, nil
	}
	return f.run(ctx, name, args...)
}

func argWithPrefix(args []string, prefix string) string {
	for _, a := range args {
		if strings.HasPrefix(a, prefix) {
			return strings.TrimPrefix(a, prefix)
		}
	}
	return ""
}

func TestCompositionID(t *testing.T) {
	tests := []struct {
		template, format, want string
	}{
		{"template-01", "ig_post_1_1", "template-01-ig-post-1-1"},
		{"t1", "f1", "t1-f1"},
		{"my_tpl", "li_banner", "my-tpl-li-banner"},
	}
	for _, tt := range tests {
		if got := CompositionID(tt.template, tt.format); got != tt.want {
			t.Errorf("CompositionID(%q, %q) = %q, want %q", tt.template, tt.format, got, tt.want)
		}
	}
}

func TestPropsFor(t *testing.T) {
	props := PropsFor(model.RenderRequest{
		PaletteKey:  "unknown",
		MotionStyle: "calm",
		Content:     model.Content{Headline: "H", Subheadline: "S", Body: "B"},
	})
	if props.Palette != model.Palettes["dark"] {
		t.Errorf("palette = %+v, want dark fallback", props.Palette)
	}
	if props.Headline != "H" || props.Subheadline != "S" || props.Body != "B" || props.MotionStyle != "calm" {
		t.Errorf("props = %+v", props)
	}
}

func TestParseCompositions(t *testing.T) {
	out := `
The following compositions are available:

template-01-ig-post-1-1     30      1080x1080      120 (4.00 sec)
template-01-li-banner       30      1128x191       120 (4.00 sec)
Some warning line
`
	comps := parseCompositions(out)
	if len(comps) != 2 {
		t.Fatalf("got %d compositions, want 2: %+v", len(comps), comps)
	}
	want := Composition{ID: "template-01-li-banner", FPS: 30, Width: 1128, Height: 191, DurationInFrames: 120}
	if comps[1] != want {
		t.Errorf("comps[1] = %+v, want %+v", comps[1], want)
	}
}

func TestRemotionEngine_Commands(t *testing.T) {
	workDir := t.TempDir()
	var seenProps InputProps

	runner := &fakeRunner{
		run: func(ctx context.Context, name string, args ...string) (CommandResult, error) {
			if name != "npx-custom" {
				t.Fatalf("command name = %q", name)
			}
			switch args[1] {
			case "bundle":
				return CommandResult{Stdout: "bundled"}, nil
			case "compositions":
				data, err := os.ReadFile(argWithPrefix(args, "--props="))
				if err != nil {
					t.Fatalf("props file not readable: %v", err)
				}
				json.Unmarshal(data, &seenProps)
				return CommandResult{Stdout: "t1-f1  30  1080x1920  120 (4.00 sec)\n"}, nil
			case "render":
				return CommandResult{}, os.WriteFile(args[4], []byte("mp4"), 0o644)
			}
			t.Fatalf("unexpected args %v", args)
			return CommandResult{}, nil
		},
	}

	engine := NewRemotionEngine(RemotionConfig{
		NpxPath:    "npx-custom",
		EntryPoint: "remotion/entry.jsx",
		WorkDir:    workDir,
	}, runner)
	ctx := context.Background()

	loc, err := engine.Bundle(ctx)
	if err != nil {
		t.Fatalf("Bundle: %v", err)
	}
	if !strings.HasPrefix(string(loc), workDir) {
		t.Errorf("bundle location %q outside work dir", loc)
	}
	bundleArgs := runner.calls[0]
	if bundleArgs[3] != "remotion/entry.jsx" || bundleArgs[4] != "--out-dir" || bundleArgs[5] != string(loc) {
		t.Errorf("bundle args = %v", bundleArgs)
	}

	props := InputProps{Headline: "Launch", PaletteKey: "blue", Palette: model.Palettes["blue"]}
	comps, err := engine.Compositions(ctx, loc, props)
	if err != nil {
		t.Fatalf("Compositions: %v", err)
	}
	if len(comps) != 1 || comps[0].ID != "t1-f1" || comps[0].Height != 1920 {
		t.Fatalf("comps = %+v", comps)
	}
	if seenProps.Headline != "Launch" || seenProps.Palette.Background != "#0a2540" {
		t.Errorf("props passed to CLI = %+v", seenProps)
	}

	out := filepath.Join(workDir, "out.mp4")
	if err := engine.Render(ctx, loc, comps[0], props, out); err != nil {
		t.Fatalf("Render: %v", err)
	}
	renderArgs := runner.calls[2]
	if renderArgs[3] != string(loc) || renderArgs[4] != "t1-f1" {
		t.Errorf("render args = %v", renderArgs)
	}
	if argWithPrefix(renderArgs, "--codec=") != "h264" {
		t.Errorf("codec flag missing in %v", renderArgs)
	}

	leftovers, _ := filepath.Glob(filepath.Join(workDir, "props-*.json"))
	if len(leftovers) != 0 {
		t.Errorf("props files not cleaned up: %v", leftovers)
	}
}

func TestRemotionEngine_BundleFailureCleansUp(t *testing.T) {
	workDir := t.TempDir()
	runner := &fakeRunner{
		run: func(ctx context.Context, name string, args ...string) (CommandResult, error) {
			res := CommandResult{Stderr: "Error: entry point not found", ExitCode: 1}
			return res, &CommandError{Command: name, Args: args, Result: res, Err: errors.New("exit status 1")}
		},
	}
	engine := NewRemotionEngine(RemotionConfig{WorkDir: workDir}, runner)

	_, err := engine.Bundle(context.Background())
	if err == nil || !strings.Contains(err.Error(), "entry point not found") {
		t.Fatalf("err = %v", err)
	}
	entries, _ := os.ReadDir(workDir)
	if len(entries) != 0 {
		t.Errorf("bundle dir left behind: %v", entries)
	}
}

func TestFFmpegEngine_ManifestAndRender(t *testing.T) {
	workDir := t.TempDir()
	runner := &fakeRunner{
		run: func(ctx context.Context, name string, args ...string) (CommandResult, error) {
			return CommandResult{}, os.WriteFile(args[len(args)-1], []byte("mp4"), 0o644)
		},
	}
	engine := NewFFmpegEngine(FFmpegConfig{FFmpegPath: "ffmpeg-custom", WorkDir: workDir}, runner)
	ctx := context.Background()

	loc, err := engine.Bundle(ctx)
	if err != nil {
		t.Fatalf("Bundle: %v", err)
	}
	comps, err := engine.Compositions(ctx, loc, InputProps{})
	if err != nil {
		t.Fatalf("Compositions: %v", err)
	}
	if len(comps) != len(model.Templates)*len(model.Formats) {
		t.Fatalf("manifest has %d compositions", len(comps))
	}

	var banner Composition
	for _, c := range comps {
		if c.ID == "template-02-li-banner" {
			banner = c
		}
	}
	if banner.Width != 1128 || banner.Height != 191 || banner.FPS != 30 {
		t.Fatalf("banner composition = %+v", banner)
	}

	out := filepath.Join(workDir, "out.mp4")
	props := PropsFor(model.RenderRequest{PaletteKey: "light", Content: model.Content{Headline: "Hi: there"}})
	if err := engine.Render(ctx, loc, banner, props, out); err != nil {
		t.Fatalf("Render: %v", err)
	}

	call := runner.calls[0]
	if call[0] != "ffmpeg-custom" {
		t.Errorf("binary = %q", call[0])
	}
	joined := strings.Join(call, " ")
	if !strings.Contains(joined, "color=c=0xf9fafb:s=1128x191:r=30") {
		t.Errorf("lavfi source missing palette background: %s", joined)
	}
	if !strings.Contains(joined, "fontcolor=0x0b0f19") {
		t.Errorf("headline colour missing: %s", joined)
	}
	if call[len(call)-1] != out {
		t.Errorf("output path = %q", call[len(call)-1])
	}
}

func TestExecRunner_ExitCode(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	res, err := ExecRunner{}.Run(context.Background(), "sh", "-c", "echo out; echo broken >&2; exit 3")
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("err = %v, want *CommandError", err)
	}
	if res.ExitCode != 3 || strings.TrimSpace(res.Stdout) != "out" {
		t.Errorf("result = %+v", res)
	}
	if !strings.Contains(err.Error(), "broken") {
		t.Errorf("error should carry stderr tail: %v", err)
	}
}

func TestExecRunner_KillsOnDeadline(t *testing.T) {
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep not available")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := ExecRunner{}.Run(ctx, "sleep", "10")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("process was not killed, took %v", elapsed)
	}
}
