package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/iamstudio/brandrender/internal/artifact"
	"github.com/iamstudio/brandrender/internal/compositor/compositortest"
	"github.com/iamstudio/brandrender/internal/queue"
	"github.com/iamstudio/brandrender/internal/render"
	"github.com/iamstudio/brandrender/internal/service"
	"github.com/iamstudio/brandrender/internal/store"
	"github.com/iamstudio/brandrender/internal/worker"
)

// testApp holds all components needed for testing
type testApp struct {
	app    *fiber.App
	store  *store.MemoryStore
	engine *compositortest.Engine
}

type appOptions struct {
	engine     *compositortest.Engine
	maxDepth   int
	noWorker   bool
	timeout    time.Duration
	startLimit fiber.Handler
}

// setupApp wires the full stack the way main.go does, with a fake engine.
func setupApp(t *testing.T, opts appOptions) *testApp {
	t.Helper()

	engine := opts.engine
	if engine == nil {
		engine = compositortest.WithCatalog()
	}
	timeout := opts.timeout
	if timeout == 0 {
		timeout = 2 * time.Second
	}

	jobs := store.NewMemoryStore()
	artifacts, err := artifact.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	cache := render.NewCompositionCache(engine)
	w := worker.NewRenderWorker(
		jobs,
		cache,
		render.NewCompositionResolver(engine),
		render.NewRenderExecutor(engine, timeout),
		artifacts,
		t.TempDir(),
		zerolog.Nop(),
	)
	q := queue.NewLocalQueue(w.Process, opts.maxDepth, zerolog.Nop())

	if !opts.noWorker {
		ctx, cancel := context.WithCancel(context.Background())
		stopped := make(chan struct{})
		go func() {
			q.Run(ctx)
			close(stopped)
		}()
		t.Cleanup(func() {
			cancel()
			<-stopped
		})
	}

	svc := service.NewRenderService(jobs, q, artifacts, zerolog.Nop())
	app := NewApp(AppConfig{BodyLimit: 2 * 1024 * 1024, CORSOrigins: "*"})
	RegisterRoutes(app,
		NewRenderHandler(svc, NewValidator(), zerolog.Nop()),
		NewHealthHandler(svc, cache.Ready, HealthInfo{Engine: engine.Name(), Queue: "local", Store: "memory", Artifact: "local"}),
		opts.startLimit,
	)

	return &testApp{app: app, store: jobs, engine: engine}
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	return app.Test(req, -1)
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

// assertErrorBody checks the {ok:false, error} envelope.
func assertErrorBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := parseJSON(t, resp)
	if ok, _ := body["ok"].(bool); ok || body["ok"] == nil {
		t.Errorf("expected ok=false, got %v", body["ok"])
	}
	if msg, _ := body["error"].(string); msg == "" {
		t.Errorf("expected error message, got %v", body)
	}
	return body
}

func startBody(template, format, headline string) string {
	b, _ := json.Marshal(map[string]interface{}{
		"templateId":  template,
		"formatKey":   format,
		"paletteKey":  "dark",
		"motionStyle": "standard",
		"headline":    headline,
		"subheadline": "Built for teams",
		"body":        "Optional body copy",
	})
	return string(b)
}

// startJob posts a start request and returns the job id.
func startJob(t *testing.T, app *fiber.App, body string) string {
	t.Helper()
	resp, err := doRequest(app, "POST", "/render/start", body)
	if err != nil {
		t.Fatal(err)
	}
	assertStatus(t, resp, fiber.StatusOK)
	result := parseJSON(t, resp)
	id, _ := result["jobId"].(string)
	if id == "" {
		t.Fatalf("no jobId in %v", result)
	}
	return id
}

// jobStatus fetches the job object from the status endpoint.
func jobStatus(t *testing.T, app *fiber.App, id string) map[string]interface{} {
	t.Helper()
	resp, err := doRequest(app, "GET", "/render/status/"+id, "")
	if err != nil {
		t.Fatal(err)
	}
	assertStatus(t, resp, fiber.StatusOK)
	job, _ := parseJSON(t, resp)["job"].(map[string]interface{})
	if job == nil {
		t.Fatalf("status response without job object")
	}
	return job
}

// waitForTerminal polls until the job is done or errored and returns every
// status value observed on the way.
func waitForTerminal(t *testing.T, app *fiber.App, id string) (map[string]interface{}, []string) {
	t.Helper()
	var seen []string
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job := jobStatus(t, app, id)
		status, _ := job["status"].(string)
		if len(seen) == 0 || seen[len(seen)-1] != status {
			seen = append(seen, status)
		}
		if status == "done" || status == "error" {
			return job, seen
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish, statuses seen: %v", id, seen)
	return nil, nil
}
