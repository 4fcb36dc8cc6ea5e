package supervisor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pixelpress/api/internal/logger"
	"github.com/pixelpress/api/internal/model"
	"github.com/pixelpress/api/internal/workspace"
)

// fakeRunner replays scripted outcomes and records every command
type fakeRunner struct {
	mu       sync.Mutex
	commands []Command
	handle   func(ctx context.Context, cmd Command) (*Outcome, error)
}

func (f *fakeRunner) Run(ctx context.Context, cmd Command) (*Outcome, error) {
	f.mu.Lock()
	f.commands = append(f.commands, cmd)
	f.mu.Unlock()
	return f.handle(ctx, cmd)
}

func isInstall(cmd Command) bool {
	return len(cmd.Args) > 0 && cmd.Args[0] == "install"
}

// producing writes an mp4 into out/ when the render command runs
func producing(cmd Command) (*Outcome, error) {
	if !isInstall(cmd) {
		path := filepath.Join(cmd.Dir, workspace.OutputDir, workspace.OutputFile)
		if err := os.WriteFile(path, []byte("video"), 0o644); err != nil {
			return nil, err
		}
	}
	return &Outcome{ExitCode: 0, Stdout: "ok"}, nil
}

func testConfig() Config {
	return Config{
		NPMBinary:        "npm",
		InstallTimeout:   time.Minute,
		RenderTimeout:    time.Minute,
		MarkerFile:       "node_modules/.package-lock.json",
		BrowserFlags:     []string{"--no-sandbox", "--disable-dev-shm-usage"},
		OutputExtensions: []string{".mp4"},
		Env:              map[string]string{"remotion_gl": "angle"},
		OutputTail:       50,
		MaxConcurrent:    2,
	}
}

func newWorkspace(t *testing.T) *workspace.Workspace {
	t.Helper()
	ws, err := workspace.Create(t.TempDir(), "job-1")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(ws.OutputDir(), 0o755); err != nil {
		t.Fatal(err)
	}
	return ws
}

type phaseRecorder struct {
	mu     sync.Mutex
	phases []Phase
}

func (p *phaseRecorder) record(ph Phase) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.phases = append(p.phases, ph)
}

func TestRender_Success(t *testing.T) {
	ws := newWorkspace(t)
	runner := &fakeRunner{handle: func(_ context.Context, cmd Command) (*Outcome, error) { return producing(cmd) }}
	rec := &phaseRecorder{}

	res, err := New(testConfig(), runner, logger.Discard()).Render(context.Background(), ws, rec.record)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	if len(res.OutputFiles) != 1 || filepath.Base(res.OutputFiles[0]) != "video.mp4" {
		t.Errorf("OutputFiles = %v", res.OutputFiles)
	}
	if !res.Installed {
		t.Error("Installed = false, want true")
	}

	want := []Phase{PhasePending, PhaseInstallingDependencies, PhaseRendering, PhaseSucceeded}
	if strings.Join(phaseNames(rec.phases), ",") != strings.Join(phaseNames(want), ",") {
		t.Errorf("phases = %v, want %v", rec.phases, want)
	}

	if len(runner.commands) != 2 {
		t.Fatalf("commands = %d, want 2", len(runner.commands))
	}
	render := runner.commands[1]
	if got := strings.Join(render.Args, " "); got != "run render -- --concurrency=1" {
		t.Errorf("render args = %q", got)
	}
	if render.Dir != ws.Dir {
		t.Errorf("render dir = %q, want %q", render.Dir, ws.Dir)
	}
	env := strings.Join(render.Env, "\n")
	for _, want := range []string{
		"REMOTION_CHROMIUM_FLAGS=--no-sandbox --disable-dev-shm-usage",
		"CHROMIUM_FLAGS=--no-sandbox --disable-dev-shm-usage",
		"REMOTION_GL=angle",
	} {
		if !strings.Contains(env, want) {
			t.Errorf("render env missing %q", want)
		}
	}
}

func phaseNames(ps []Phase) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = string(p)
	}
	return out
}

func TestRender_SkipsInstallWhenMarkerPresent(t *testing.T) {
	ws := newWorkspace(t)
	marker := ws.Path("node_modules/.package-lock.json")
	if err := os.MkdirAll(filepath.Dir(marker), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(marker, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	runner := &fakeRunner{handle: func(_ context.Context, cmd Command) (*Outcome, error) { return producing(cmd) }}

	res, err := New(testConfig(), runner, logger.Discard()).Render(context.Background(), ws, nil)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if res.Installed {
		t.Error("Installed = true, want false")
	}
	for _, c := range runner.commands {
		if isInstall(c) {
			t.Error("install ran despite marker file")
		}
	}
}

func TestRender_BrowserProbe(t *testing.T) {
	ws := newWorkspace(t)
	browser := filepath.Join(t.TempDir(), "chromium")
	if err := os.WriteFile(browser, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	cfg := testConfig()
	cfg.BrowserPaths = []string{filepath.Join(t.TempDir(), "missing"), t.TempDir(), browser}
	runner := &fakeRunner{handle: func(_ context.Context, cmd Command) (*Outcome, error) { return producing(cmd) }}

	res, err := New(cfg, runner, logger.Discard()).Render(context.Background(), ws, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Browser != browser {
		t.Errorf("Browser = %q, want %q", res.Browser, browser)
	}
	render := runner.commands[len(runner.commands)-1]
	if render.Args[len(render.Args)-1] != "--browser-executable="+browser {
		t.Errorf("render args = %v", render.Args)
	}
	if !strings.Contains(strings.Join(render.Env, "\n"), "PUPPETEER_EXECUTABLE_PATH="+browser) {
		t.Error("PUPPETEER_EXECUTABLE_PATH not set")
	}
}

func TestRender_Failures(t *testing.T) {
	tests := []struct {
		name         string
		handle       func(cmd Command) (*Outcome, error)
		wantKind     model.ErrorKind
		wantStage    model.Stage
		wantTimedOut bool
		wantExit     int
	}{
		{
			name: "install exits nonzero",
			handle: func(cmd Command) (*Outcome, error) {
				if isInstall(cmd) {
					return &Outcome{ExitCode: 1, Stderr: "ERR! network"}, nil
				}
				return producing(cmd)
			},
			wantKind:  model.KindDependencyInstall,
			wantStage: model.StageInstall,
			wantExit:  1,
		},
		{
			name: "install times out",
			handle: func(cmd Command) (*Outcome, error) {
				if isInstall(cmd) {
					return &Outcome{ExitCode: -1, TimedOut: true}, nil
				}
				return producing(cmd)
			},
			wantKind:     model.KindDependencyInstall,
			wantStage:    model.StageInstall,
			wantTimedOut: true,
		},
		{
			name: "render exits nonzero",
			handle: func(cmd Command) (*Outcome, error) {
				if isInstall(cmd) {
					return &Outcome{}, nil
				}
				return &Outcome{ExitCode: 2, Stderr: "composition not found"}, nil
			},
			wantKind:  model.KindRender,
			wantStage: model.StageRender,
			wantExit:  2,
		},
		{
			name: "render times out",
			handle: func(cmd Command) (*Outcome, error) {
				if isInstall(cmd) {
					return &Outcome{}, nil
				}
				return &Outcome{ExitCode: -1, TimedOut: true, Stdout: "frame 12/450"}, nil
			},
			wantKind:     model.KindRender,
			wantStage:    model.StageRender,
			wantTimedOut: true,
		},
		{
			name: "render produces nothing",
			handle: func(cmd Command) (*Outcome, error) {
				return &Outcome{}, nil
			},
			wantKind:  model.KindNoArtifact,
			wantStage: model.StageRender,
		},
		{
			name: "npm missing",
			handle: func(cmd Command) (*Outcome, error) {
				return nil, errors.New("executable file not found")
			},
			wantKind:  model.KindDependencyInstall,
			wantStage: model.StageInstall,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ws := newWorkspace(t)
			runner := &fakeRunner{handle: func(_ context.Context, cmd Command) (*Outcome, error) { return tt.handle(cmd) }}
			rec := &phaseRecorder{}

			res, err := New(testConfig(), runner, logger.Discard()).Render(context.Background(), ws, rec.record)
			if res != nil {
				t.Errorf("Render() result = %+v, want nil", res)
			}
			pe, ok := model.AsPipelineError(err)
			if !ok {
				t.Fatalf("Render() error = %v, want PipelineError", err)
			}
			if pe.Kind != tt.wantKind || pe.Stage != tt.wantStage {
				t.Errorf("Kind/Stage = %s/%s, want %s/%s", pe.Kind, pe.Stage, tt.wantKind, tt.wantStage)
			}
			if pe.TimedOut != tt.wantTimedOut {
				t.Errorf("TimedOut = %v, want %v", pe.TimedOut, tt.wantTimedOut)
			}
			if tt.wantExit != 0 && (pe.ExitCode == nil || *pe.ExitCode != tt.wantExit) {
				t.Errorf("ExitCode = %v, want %d", pe.ExitCode, tt.wantExit)
			}
			if last := rec.phases[len(rec.phases)-1]; last != PhaseFailed {
				t.Errorf("last phase = %s, want Failed", last)
			}
		})
	}
}

func TestRender_DetailIsBounded(t *testing.T) {
	ws := newWorkspace(t)
	long := strings.Repeat("x", 500) + "TAIL"
	runner := &fakeRunner{handle: func(_ context.Context, cmd Command) (*Outcome, error) {
		return &Outcome{ExitCode: 1, Stderr: long}, nil
	}}

	_, err := New(testConfig(), runner, logger.Discard()).Render(context.Background(), ws, nil)
	pe, ok := model.AsPipelineError(err)
	if !ok {
		t.Fatalf("error = %v", err)
	}
	if len(pe.Detail) != 50 || !strings.HasSuffix(pe.Detail, "TAIL") {
		t.Errorf("Detail = %q (len %d), want last 50 chars", pe.Detail, len(pe.Detail))
	}
}

func TestRender_ConcurrencyCap(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConcurrent = 1
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	runner := &fakeRunner{handle: func(_ context.Context, cmd Command) (*Outcome, error) {
		if isInstall(cmd) {
			started <- struct{}{}
			<-release
		}
		return producing(cmd)
	}}
	sup := New(cfg, runner, logger.Discard())

	ws1 := newWorkspace(t)
	done := make(chan error, 1)
	go func() {
		_, err := sup.Render(context.Background(), ws1, nil)
		done <- err
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := sup.Render(ctx, newWorkspace(t), nil)
	if pe, ok := model.AsPipelineError(err); !ok || pe.Kind != model.KindRender {
		t.Errorf("second Render() error = %v, want slot failure", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Errorf("first Render() error = %v", err)
	}
}

func TestTail(t *testing.T) {
	if got := Tail("hello", 10); got != "hello" {
		t.Errorf("Tail() = %q", got)
	}
	if got := Tail("hello world", 5); got != "world" {
		t.Errorf("Tail() = %q", got)
	}
	if got := Tail("aé", 1); got != "" {
		t.Errorf("Tail() = %q, want split rune dropped", got)
	}
}
