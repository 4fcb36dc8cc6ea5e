package registry

import (
	"context"
	"sync"

	"github.com/pixelpress/api/internal/model"
)

// Memory is a process-local registry
type Memory struct {
	mu   sync.RWMutex
	jobs map[string]*model.Job
}

func NewMemory() *Memory {
	return &Memory{jobs: make(map[string]*model.Job)}
}

func (m *Memory) Create(_ context.Context, job *model.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.jobs[job.ID]; ok {
		return ErrJobExists
	}
	m.jobs[job.ID] = job.Clone()
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (*model.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil, model.ErrJobNotFound
	}
	return job.Clone(), nil
}

func (m *Memory) Update(_ context.Context, id string, fn UpdateFunc) (*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.jobs[id]
	if !ok {
		return nil, model.ErrJobNotFound
	}
	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	m.jobs[id] = next
	return next.Clone(), nil
}
