// Package registry stores job records and serializes their state changes.
package registry

import (
	"context"
	"errors"
	"time"

	"github.com/pixelpress/api/internal/model"
)

var ErrJobExists = errors.New("job already exists")

// UpdateFunc mutates a job in place. Returning an error aborts the update and
// leaves the stored record untouched.
type UpdateFunc func(job *model.Job) error

// Registry is the authoritative store of job state. Every Update is one atomic
// read-modify-write; callers never observe a torn record.
type Registry interface {
	Create(ctx context.Context, job *model.Job) error
	Get(ctx context.Context, id string) (*model.Job, error)
	Update(ctx context.Context, id string, fn UpdateFunc) (*model.Job, error)
}

// Transition atomically moves job id to state to, applying mutate to the
// record in the same update. Backward or skipping moves fail with
// model.ErrInvalidTransition.
func Transition(ctx context.Context, r Registry, id string, to model.JobState, mutate func(job *model.Job)) (*model.Job, error) {
	return r.Update(ctx, id, func(job *model.Job) error {
		if err := job.TransitionTo(to, time.Now().UTC()); err != nil {
			return err
		}
		if mutate != nil {
			mutate(job)
		}
		return nil
	})
}
