package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"

	"github.com/pixelpress/api/internal/auth"
	"github.com/pixelpress/api/internal/extract"
	"github.com/pixelpress/api/internal/extract/pdftest"
	"github.com/pixelpress/api/internal/handler"
	"github.com/pixelpress/api/internal/logger"
	"github.com/pixelpress/api/internal/middleware"
	"github.com/pixelpress/api/internal/model"
	"github.com/pixelpress/api/internal/packager"
	"github.com/pixelpress/api/internal/registry"
	"github.com/pixelpress/api/internal/service"
	"github.com/pixelpress/api/internal/supervisor"
	"github.com/pixelpress/api/internal/workspace"
)

const testJWTSecret = "test-secret-for-e2e"

// testApp holds all components needed for testing
type testApp struct {
	app  *fiber.App
	reg  *registry.Memory
	root string
}

type runnerFunc func(ctx context.Context, cmd supervisor.Command) (*supervisor.Outcome, error)

func (f runnerFunc) Run(ctx context.Context, cmd supervisor.Command) (*supervisor.Outcome, error) {
	return f(ctx, cmd)
}

// renderingRunner stands in for npm: install succeeds, render writes a video
func renderingRunner(_ context.Context, cmd supervisor.Command) (*supervisor.Outcome, error) {
	if cmd.Args[0] != "install" {
		path := filepath.Join(cmd.Dir, workspace.OutputDir, workspace.OutputFile)
		if err := os.WriteFile(path, []byte("mp4"), 0o644); err != nil {
			return nil, err
		}
	}
	return &supervisor.Outcome{}, nil
}

type fakeQueue struct {
	tasks []*asynq.Task
}

func (q *fakeQueue) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	q.tasks = append(q.tasks, task)
	return &asynq.TaskInfo{ID: "id"}, nil
}

type appOptions struct {
	runner supervisor.Runner
	queue  service.TaskEnqueuer
}

type appOption func(*appOptions)

func withRunner(r supervisor.Runner) appOption {
	return func(o *appOptions) { o.runner = r }
}

func withQueue(q service.TaskEnqueuer) appOption {
	return func(o *appOptions) { o.queue = q }
}

// setupApp creates a Fiber app wired like main.go, with an in-memory registry
// and a fake npm runner instead of real subprocesses.
func setupApp(t *testing.T, opts ...appOption) *testApp {
	t.Helper()

	o := appOptions{runner: runnerFunc(renderingRunner)}
	for _, opt := range opts {
		opt(&o)
	}

	log := logger.Discard()
	root := filepath.Join(t.TempDir(), "jobs")
	reg := registry.NewMemory()

	svc := service.NewVideoService(service.VideoOptions{
		WorkspaceRoot: root,
		AllowEmbedded: true,
		Manifest: workspace.ManifestConfig{
			Remotion: "^4.0.0", CLI: "^4.0.0", React: "^18.2.0", ReactDOM: "^18.2.0",
		},
		DetailLimit: 200,
	}, service.VideoDeps{
		Registry: reg,
		Extractor: extract.New(extract.Options{
			Strategy:         model.StrategyAuto,
			BrandKey:         "BrandData",
			CodeKey:          "RemotionCode",
			OrchestrationKey: "OrchestrationCode",
		}, log),
		Renderer: supervisor.New(supervisor.Config{
			NPMBinary:        "npm",
			InstallTimeout:   time.Minute,
			RenderTimeout:    time.Minute,
			MarkerFile:       "node_modules/.package-lock.json",
			OutputExtensions: []string{".mp4"},
			OutputTail:       200,
			MaxConcurrent:    2,
		}, o.runner, log),
		Packager: packager.New(),
		Queue:    o.queue,
		Logger:   log,
	})

	verifier := auth.NewHMACVerifier(testJWTSecret)

	app := fiber.New(fiber.Config{
		ErrorHandler: handler.ErrorHandler,
		BodyLimit:    50 * 1024 * 1024,
	})

	handler.Routes{
		Video:           handler.NewVideoHandler(svc, validator.New()),
		Auth:            handler.NewAuthHandler(verifier),
		APIAuth:         middleware.NewAuthMiddleware(verifier).Authenticate(),
		SubmitPerHour:   10000,
		GeneratePerHour: 10000,
	}.Register(app)

	return &testApp{app: app, reg: reg, root: root}
}

// generateToken creates an HMAC JWT token for test requests.
func generateToken(t *testing.T) string {
	t.Helper()
	token, err := auth.IssueHMACToken(testJWTSecret, "test-user-123", "test@example.com", time.Hour)
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return token
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
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
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// doAuthRequest performs an authenticated request.
func doAuthRequest(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, error) {
	t.Helper()
	return doRequest(app, method, path, body, map[string]string{
		"Authorization": "Bearer " + generateToken(t),
	})
}

// doUpload posts data as a multipart file under field.
func doUpload(t *testing.T, app *fiber.App, field string, data []byte) (*http.Response, error) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if field != "" {
		fw, err := mw.CreateFormFile(field, "brand.pdf")
		if err != nil {
			t.Fatalf("failed to create form file: %v", err)
		}
		if _, err := fw.Write(data); err != nil {
			t.Fatalf("failed to write form file: %v", err)
		}
	} else if err := mw.WriteField("note", "no file"); err != nil {
		t.Fatalf("failed to write field: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, "/api/upload-pdf", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+generateToken(t))
	return app.Test(req, -1)
}

// uploadDocument submits a document and returns the new job ID.
func uploadDocument(t *testing.T, ta *testApp, info map[string]string) string {
	t.Helper()
	resp, err := doUpload(t, ta.app, "pdf", pdftest.Build(nil, info))
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	assertStatus(t, resp, http.StatusCreated)
	body := parseJSON(t, resp)
	jobID, _ := body["job_id"].(string)
	if jobID == "" {
		t.Fatalf("expected job_id in response, got %v", body)
	}
	return jobID
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

// errorCode returns error.code of an error envelope.
func errorCode(t *testing.T, body map[string]interface{}) string {
	t.Helper()
	e, ok := body["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected error envelope, got %v", body)
	}
	code, _ := e["code"].(string)
	return code
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}
