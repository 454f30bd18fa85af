package worker

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/iamstudio/brandrender/internal/artifact"
	"github.com/iamstudio/brandrender/internal/compositor"
	"github.com/iamstudio/brandrender/internal/compositor/compositortest"
	"github.com/iamstudio/brandrender/internal/model"
	"github.com/iamstudio/brandrender/internal/queue"
	"github.com/iamstudio/brandrender/internal/render"
	"github.com/iamstudio/brandrender/internal/store"
)

type fixture struct {
	store     *store.MemoryStore
	engine    *compositortest.Engine
	artifacts *artifact.LocalStore
	worker    *RenderWorker
}

func newFixture(t *testing.T, engine *compositortest.Engine, timeout time.Duration) *fixture {
	t.Helper()
	artifacts, err := artifact.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	jobs := store.NewMemoryStore()
	w := NewRenderWorker(
		jobs,
		render.NewCompositionCache(engine),
		render.NewCompositionResolver(engine),
		render.NewRenderExecutor(engine, timeout),
		artifacts,
		t.TempDir(),
		zerolog.Nop(),
	)
	return &fixture{store: jobs, engine: engine, artifacts: artifacts, worker: w}
}

func request(template, format, headline string) model.RenderRequest {
	return model.RenderRequest{
		TemplateID:  template,
		FormatKey:   format,
		PaletteKey:  "dark",
		MotionStyle: "standard",
		Content:     model.Content{Headline: headline, Subheadline: "sub"},
	}
}

func (f *fixture) create(t *testing.T, req model.RenderRequest) string {
	t.Helper()
	job, err := f.store.Create(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	return job.ID
}

func (f *fixture) get(t *testing.T, id string) model.Job {
	t.Helper()
	job, err := f.store.Get(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	return job
}

func TestProcess_Success(t *testing.T) {
	f := newFixture(t, compositortest.WithCatalog(), time.Second)
	id := f.create(t, request("template-01", "ig_post_1_1", "Launch day"))

	if err := f.worker.Process(context.Background(), id); err != nil {
		t.Fatalf("Process: %v", err)
	}

	job := f.get(t, id)
	if job.Status != model.JobStatusDone || job.Phase != model.PhaseDone {
		t.Fatalf("job = %s/%s (%s)", job.Status, job.Phase, job.ErrorMessage)
	}
	if job.OutputRef != id+".mp4" {
		t.Fatalf("outputRef = %q", job.OutputRef)
	}

	rc, _, err := f.artifacts.Open(context.Background(), job.OutputRef)
	if err != nil {
		t.Fatalf("artifact missing: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "template-01-ig-post-1-1:Launch day" {
		t.Fatalf("artifact content = %q", data)
	}
}

func TestProcess_CompositionNotFound(t *testing.T) {
	f := newFixture(t, compositortest.WithCatalog(), time.Second)
	id := f.create(t, request("t1", "f1", "Hi"))

	if err := f.worker.Process(context.Background(), id); err != nil {
		t.Fatalf("Process: %v", err)
	}

	job := f.get(t, id)
	if job.Status != model.JobStatusError || job.OutputRef != "" {
		t.Fatalf("job = %+v", job)
	}
	if !strings.Contains(job.ErrorMessage, "t1-f1") || !strings.Contains(job.ErrorMessage, "template-01") {
		t.Fatalf("error message should name wanted and available ids: %q", job.ErrorMessage)
	}
	if len(f.engine.Renders()) != 0 {
		t.Fatal("renderer must not run for an unknown composition")
	}
}

func TestProcess_BundleFailureThenRetry(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	engine := compositortest.WithCatalog()
	engine.BundleFunc = func(ctx context.Context) (compositor.ServeLocation, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			return "", errors.New("npm install failed")
		}
		return "bundle", nil
	}
	f := newFixture(t, engine, time.Second)

	first := f.create(t, request("template-01", "x_post", "One"))
	second := f.create(t, request("template-01", "x_post", "Two"))

	f.worker.Process(context.Background(), first)
	f.worker.Process(context.Background(), second)

	if job := f.get(t, first); job.Status != model.JobStatusError || !strings.Contains(job.ErrorMessage, "npm install failed") {
		t.Fatalf("first job = %+v", job)
	}
	if job := f.get(t, second); job.Status != model.JobStatusDone {
		t.Fatalf("second job = %+v", job)
	}
}

func TestProcess_RenderPanicIsRecorded(t *testing.T) {
	engine := compositortest.WithCatalog()
	engine.RenderFunc = func(context.Context, compositor.Composition, compositor.InputProps, string) error {
		panic("segfault in encoder")
	}
	f := newFixture(t, engine, time.Second)
	id := f.create(t, request("template-01", "x_post", "Hi"))

	if err := f.worker.Process(context.Background(), id); err != nil {
		t.Fatalf("Process: %v", err)
	}
	job := f.get(t, id)
	if job.Status != model.JobStatusError || !strings.Contains(job.ErrorMessage, "segfault in encoder") {
		t.Fatalf("job = %+v", job)
	}
}

func TestProcess_SkipsNonQueuedAndUnknown(t *testing.T) {
	f := newFixture(t, compositortest.WithCatalog(), time.Second)
	id := f.create(t, request("template-01", "x_post", "Hi"))
	f.worker.Process(context.Background(), id)

	if err := f.worker.Process(context.Background(), id); err != nil {
		t.Fatalf("second Process: %v", err)
	}
	if got := len(f.engine.Renders()); got != 1 {
		t.Fatalf("job rendered %d times", got)
	}
	if err := f.worker.Process(context.Background(), "missing"); err != nil {
		t.Fatalf("unknown job: %v", err)
	}
}

// Timeout on one job must not stop the next one from running.
func TestProcess_TimeoutThenNextJobRuns(t *testing.T) {
	engine := compositortest.WithCatalog()
	engine.RenderFunc = func(ctx context.Context, comp compositor.Composition, props compositor.InputProps, out string) error {
		if props.Headline == "slow" {
			<-ctx.Done()
			return ctx.Err()
		}
		return compositortest.WriteVideo(out, comp, props)
	}
	f := newFixture(t, engine, 50*time.Millisecond)

	q := queue.NewLocalQueue(f.worker.Process, 0, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	slow := f.create(t, request("template-01", "x_post", "slow"))
	fast := f.create(t, request("template-01", "x_post", "fast"))
	q.Submit(ctx, slow)
	q.Submit(ctx, fast)

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if f.get(t, fast).IsTerminal() {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	slowJob := f.get(t, slow)
	if slowJob.Status != model.JobStatusError || !strings.Contains(slowJob.ErrorMessage, "timeout") {
		t.Fatalf("slow job = %+v", slowJob)
	}
	if fastJob := f.get(t, fast); fastJob.Status != model.JobStatusDone {
		t.Fatalf("fast job = %+v", fastJob)
	}
}

// Two jobs for different formats never share an artifact.
func TestProcess_DistinctArtifacts(t *testing.T) {
	f := newFixture(t, compositortest.WithCatalog(), time.Second)
	a := f.create(t, request("template-01", "ig_post_1_1", "Same"))
	b := f.create(t, request("template-01", "li_banner", "Same"))

	f.worker.Process(context.Background(), a)
	f.worker.Process(context.Background(), b)

	ja, jb := f.get(t, a), f.get(t, b)
	if ja.OutputRef == jb.OutputRef {
		t.Fatalf("jobs share output ref %q", ja.OutputRef)
	}
	if f.engine.BundleCalls() != 1 {
		t.Fatalf("bundle calls = %d, want 1", f.engine.BundleCalls())
	}
}
