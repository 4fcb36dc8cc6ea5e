// Package supervisor drives the external dependency install and render
// processes of a materialized project and classifies how they end.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/pixelpress/api/internal/logger"
	"github.com/pixelpress/api/internal/model"
	"github.com/pixelpress/api/internal/workspace"
)

// Phase is the supervisor's view of a render in progress
type Phase string

const (
	PhasePending                Phase = "Pending"
	PhaseInstallingDependencies Phase = "InstallingDependencies"
	PhaseRendering              Phase = "Rendering"
	PhaseSucceeded              Phase = "Succeeded"
	PhaseFailed                 Phase = "Failed"
)

// PhaseFunc observes phase changes. It must not block.
type PhaseFunc func(Phase)

type Config struct {
	NPMBinary        string
	InstallTimeout   time.Duration
	RenderTimeout    time.Duration
	MarkerFile       string
	BrowserPaths     []string
	BrowserFlags     []string
	OutputExtensions []string
	Env              map[string]string
	OutputTail       int
	MaxConcurrent    int64
}

// Result of a successful render
type Result struct {
	// OutputFiles are absolute paths of the produced artifacts, sorted.
	OutputFiles []string
	Stdout      string
	Stderr      string
	Browser     string
	// Installed is false when dependencies were already present.
	Installed bool
}

type Supervisor struct {
	cfg    Config
	runner Runner
	slots  *semaphore.Weighted
	log    *logger.Logger
}

func New(cfg Config, runner Runner, log *logger.Logger) *Supervisor {
	if cfg.NPMBinary == "" {
		cfg.NPMBinary = "npm"
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if cfg.OutputTail <= 0 {
		cfg.OutputTail = 4000
	}
	if len(cfg.OutputExtensions) == 0 {
		cfg.OutputExtensions = []string{".mp4"}
	}
	if log == nil {
		log = logger.NewDefault()
	}
	return &Supervisor{
		cfg:    cfg,
		runner: runner,
		slots:  semaphore.NewWeighted(cfg.MaxConcurrent),
		log:    log.WithComponent("supervisor"),
	}
}

// Render installs the project's dependencies if needed, runs the render
// script and collects the artifacts. Failures are *model.PipelineError.
func (s *Supervisor) Render(ctx context.Context, ws *workspace.Workspace, onPhase PhaseFunc) (*Result, error) {
	if onPhase == nil {
		onPhase = func(Phase) {}
	}
	log := s.log.WithJobID(ws.JobID)

	onPhase(PhasePending)
	if err := s.slots.Acquire(ctx, 1); err != nil {
		onPhase(PhaseFailed)
		return nil, model.NewPipelineError(model.KindRender, model.StageRender,
			"supervisor.acquire", "no render slot available", err)
	}
	defer s.slots.Release(1)

	res, err := s.run(ctx, ws, onPhase, log)
	if err != nil {
		onPhase(PhaseFailed)
		log.Error("render failed", "error", err.Error())
		return nil, err
	}
	onPhase(PhaseSucceeded)
	log.Info("render succeeded", "outputs", len(res.OutputFiles), "installed", res.Installed)
	return res, nil
}

func (s *Supervisor) run(ctx context.Context, ws *workspace.Workspace, onPhase PhaseFunc, log *logger.Logger) (*Result, error) {
	res := &Result{}

	if s.needsInstall(ws) {
		onPhase(PhaseInstallingDependencies)
		log.Info("installing dependencies")
		out, err := s.runner.Run(ctx, Command{
			Name:    s.cfg.NPMBinary,
			Args:    []string{"install"},
			Dir:     ws.Dir,
			Env:     s.env(""),
			Timeout: s.cfg.InstallTimeout,
		})
		if perr := s.classify(model.KindDependencyInstall, model.StageInstall, "supervisor.install", "dependency install", out, err, s.cfg.InstallTimeout); perr != nil {
			return nil, perr
		}
		res.Installed = true
	} else {
		log.Debug("dependencies present, skipping install")
	}

	onPhase(PhaseRendering)
	if err := os.MkdirAll(ws.OutputDir(), 0o755); err != nil {
		return nil, model.NewPipelineError(model.KindRender, model.StageRender,
			"supervisor.render", "failed to prepare output directory", err)
	}

	res.Browser = probeBrowser(s.cfg.BrowserPaths)
	args := []string{"run", "render", "--", "--concurrency=1"}
	if res.Browser != "" {
		args = append(args, "--browser-executable="+res.Browser)
	}
	log.Info("rendering", "browser", res.Browser)

	out, err := s.runner.Run(ctx, Command{
		Name:    s.cfg.NPMBinary,
		Args:    args,
		Dir:     ws.Dir,
		Env:     s.env(res.Browser),
		Timeout: s.cfg.RenderTimeout,
	})
	if perr := s.classify(model.KindRender, model.StageRender, "supervisor.render", "render", out, err, s.cfg.RenderTimeout); perr != nil {
		return nil, perr
	}
	res.Stdout = Tail(out.Stdout, s.cfg.OutputTail)
	res.Stderr = Tail(out.Stderr, s.cfg.OutputTail)

	files, err := s.collectOutputs(ws)
	if err != nil {
		return nil, model.NewPipelineError(model.KindRender, model.StageRender,
			"supervisor.collect", "failed to scan output directory", err)
	}
	if len(files) == 0 {
		perr := model.NewPipelineError(model.KindNoArtifact, model.StageRender,
			"supervisor.collect", "render exited successfully but produced no output", nil)
		perr.Detail = s.detail(out)
		code := out.ExitCode
		perr.ExitCode = &code
		return nil, perr
	}
	res.OutputFiles = files
	return res, nil
}

// classify turns a process outcome into a pipeline failure, or nil on success
func (s *Supervisor) classify(kind model.ErrorKind, stage model.Stage, op, what string, out *Outcome, err error, timeout time.Duration) *model.PipelineError {
	if err != nil {
		perr := model.NewPipelineError(kind, stage, op, what+" could not run", err)
		if out != nil {
			perr.Detail = s.detail(out)
		}
		return perr
	}
	if out.TimedOut {
		perr := model.NewPipelineError(kind, stage, op, fmt.Sprintf("%s timed out after %s", what, timeout), nil)
		perr.TimedOut = true
		perr.Detail = s.detail(out)
		return perr
	}
	if out.ExitCode != 0 {
		perr := model.NewPipelineError(kind, stage, op, fmt.Sprintf("%s exited with code %d", what, out.ExitCode), nil)
		code := out.ExitCode
		perr.ExitCode = &code
		perr.Detail = s.detail(out)
		return perr
	}
	return nil
}

// detail is the bounded output attached to a failure, stderr preferred
func (s *Supervisor) detail(out *Outcome) string {
	if strings.TrimSpace(out.Stderr) != "" {
		return Tail(out.Stderr, s.cfg.OutputTail)
	}
	return Tail(out.Stdout, s.cfg.OutputTail)
}

func (s *Supervisor) needsInstall(ws *workspace.Workspace) bool {
	if s.cfg.MarkerFile == "" {
		return true
	}
	_, err := os.Stat(ws.Path(s.cfg.MarkerFile))
	return err != nil
}

// env builds the process environment additions
func (s *Supervisor) env(browser string) []string {
	var env []string
	if len(s.cfg.BrowserFlags) > 0 {
		flags := strings.Join(s.cfg.BrowserFlags, " ")
		env = append(env, "REMOTION_CHROMIUM_FLAGS="+flags, "CHROMIUM_FLAGS="+flags)
	}
	if browser != "" {
		env = append(env, "PUPPETEER_EXECUTABLE_PATH="+browser)
	}
	keys := make([]string, 0, len(s.cfg.Env))
	for k := range s.cfg.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, strings.ToUpper(k)+"="+s.cfg.Env[k])
	}
	return env
}

// collectOutputs lists artifacts in out/ matching the configured extensions
func (s *Supervisor) collectOutputs(ws *workspace.Workspace) ([]string, error) {
	entries, err := os.ReadDir(ws.OutputDir())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		for _, want := range s.cfg.OutputExtensions {
			if ext == strings.ToLower(want) {
				files = append(files, filepath.Join(ws.OutputDir(), e.Name()))
				break
			}
		}
	}
	sort.Strings(files)
	return files, nil
}

// probeBrowser returns the first path naming an existing regular file
func probeBrowser(paths []string) string {
	for _, p := range paths {
		info, err := os.Stat(p)
		if err == nil && info.Mode().IsRegular() {
			return p
		}
	}
	return ""
}
