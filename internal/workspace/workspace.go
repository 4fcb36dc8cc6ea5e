// Package workspace manages the per-job directory a render project lives in.
package workspace

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pixelpress/api/internal/model"
)

// File layout inside a job directory
const (
	DocumentFile      = "uploaded.pdf"
	SourceDir         = "src"
	EntryFile         = "index.jsx"
	OrchestrationFile = "orchestration.jsx"
	ManifestFile      = "package.json"
	OutputDir         = "out"
	OutputFile        = "video.mp4"
)

var ErrInvalidJobID = errors.New("invalid job id")

// Workspace is the isolated directory of one job
type Workspace struct {
	JobID string
	Dir   string
}

// Create makes a fresh directory for jobID under root
func Create(root, jobID string) (*Workspace, error) {
	if err := validateJobID(jobID); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create workspace root: %w", err)
	}
	dir := filepath.Join(root, jobID)
	if err := os.Mkdir(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	return &Workspace{JobID: jobID, Dir: dir}, nil
}

// Open returns the existing workspace of jobID
func Open(root, jobID string) (*Workspace, error) {
	if err := validateJobID(jobID); err != nil {
		return nil, err
	}
	dir := filepath.Join(root, jobID)
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, model.ErrJobNotFound
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, model.ErrJobNotFound
	}
	return &Workspace{JobID: jobID, Dir: dir}, nil
}

// Remove deletes the workspace and everything in it
func (w *Workspace) Remove() error {
	return os.RemoveAll(w.Dir)
}

func (w *Workspace) DocumentPath() string {
	return filepath.Join(w.Dir, DocumentFile)
}

func (w *Workspace) EntryPath() string {
	return filepath.Join(w.Dir, SourceDir, EntryFile)
}

func (w *Workspace) OrchestrationPath() string {
	return filepath.Join(w.Dir, SourceDir, OrchestrationFile)
}

func (w *Workspace) ManifestPath() string {
	return filepath.Join(w.Dir, ManifestFile)
}

func (w *Workspace) OutputDir() string {
	return filepath.Join(w.Dir, OutputDir)
}

// Path joins rel onto the workspace directory
func (w *Workspace) Path(rel string) string {
	return filepath.Join(w.Dir, filepath.FromSlash(rel))
}

// SaveDocument stores the uploaded document, returning the bytes written
func (w *Workspace) SaveDocument(r io.Reader) (int64, error) {
	f, err := os.Create(w.DocumentPath())
	if err != nil {
		return 0, fmt.Errorf("failed to create document file: %w", err)
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, fmt.Errorf("failed to save document: %w", err)
	}
	return n, nil
}

func validateJobID(jobID string) error {
	if jobID == "" || jobID == "." || jobID == ".." ||
		strings.ContainsAny(jobID, `/\`) || filepath.Base(jobID) != jobID {
		return fmt.Errorf("%w: %q", ErrInvalidJobID, jobID)
	}
	return nil
}
