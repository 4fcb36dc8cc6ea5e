package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pixelpress/api/internal/compose"
	"github.com/pixelpress/api/internal/model"
)

// ManifestConfig holds the package versions written into the project manifest
type ManifestConfig struct {
	Name     string
	Remotion string
	CLI      string
	React    string
	ReactDOM string
}

// Manifest is the package.json of a render project
type Manifest struct {
	Name         string            `json:"name"`
	Version      string            `json:"version"`
	Private      bool              `json:"private"`
	Type         string            `json:"type"`
	Scripts      map[string]string `json:"scripts"`
	Dependencies map[string]string `json:"dependencies"`
}

// NewManifest builds the manifest that renders compositionID to out/video.mp4
func NewManifest(cfg ManifestConfig, compositionID string) Manifest {
	name := cfg.Name
	if name == "" {
		name = "video-renderer"
	}
	render := fmt.Sprintf("remotion render %s/%s %s %s/%s",
		SourceDir, EntryFile, compositionID, OutputDir, OutputFile)

	return Manifest{
		Name:    name,
		Version: "1.0.0",
		Private: true,
		Type:    "module",
		Scripts: map[string]string{"render": render},
		Dependencies: map[string]string{
			"remotion":      cfg.Remotion,
			"@remotion/cli": cfg.CLI,
			"react":         cfg.React,
			"react-dom":     cfg.ReactDOM,
		},
	}
}

// Materialize writes the render project for res into the workspace:
// src/index.jsx, src/orchestration.jsx when orchestration is non-empty,
// package.json and an empty out/ directory.
func (w *Workspace) Materialize(res compose.Resolution, orchestration string, cfg ManifestConfig) error {
	const op = "workspace.Materialize"

	fail := func(msg string, err error) error {
		return model.NewPipelineError(model.KindMaterialization, model.StageMaterialize, op, msg, err)
	}

	if err := os.MkdirAll(filepath.Join(w.Dir, SourceDir), 0o755); err != nil {
		return fail("failed to create source directory", err)
	}
	if err := os.MkdirAll(w.OutputDir(), 0o755); err != nil {
		return fail("failed to create output directory", err)
	}

	if err := os.WriteFile(w.EntryPath(), []byte(res.Source), 0o644); err != nil {
		return fail("failed to write entry source", err)
	}

	if strings.TrimSpace(orchestration) != "" {
		if err := os.WriteFile(w.OrchestrationPath(), []byte(orchestration), 0o644); err != nil {
			return fail("failed to write orchestration source", err)
		}
	}

	data, err := json.MarshalIndent(NewManifest(cfg, res.CompositionID), "", "  ")
	if err != nil {
		return fail("failed to encode manifest", err)
	}
	if err := os.WriteFile(w.ManifestPath(), append(data, '\n'), 0o644); err != nil {
		return fail("failed to write manifest", err)
	}

	return nil
}
