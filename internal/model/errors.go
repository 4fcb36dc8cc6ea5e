package model

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrJobNotFound       = errors.New("job not found")
	ErrBundleNotFound    = errors.New("bundle not found")
	ErrInvalidTransition = errors.New("invalid job state transition")
	ErrJobNotReady       = errors.New("job not ready")
)

// TransitionError reports a rejected state change
type TransitionError struct {
	JobID string
	From  JobState
	To    JobState
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("job %s: cannot move from %s to %s", e.JobID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// PipelineError is a classified, job-fatal failure of one pipeline stage.
type PipelineError struct {
	Kind  ErrorKind
	Stage Stage
	// Op names the operation that failed (e.g. "supervisor.install").
	Op      string
	Message string
	// Detail holds a bounded tail of captured process output.
	Detail   string
	ExitCode *int
	TimedOut bool
	Err      error
}

func (e *PipelineError) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString("[")
	b.WriteString(string(e.Kind))
	b.WriteString("] ")
	b.WriteString(e.Message)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Is matches another PipelineError by kind
func (e *PipelineError) Is(target error) bool {
	if t, ok := target.(*PipelineError); ok {
		return e.Kind == t.Kind
	}
	return false
}

// JobError converts the failure into the record stored on the job
func (e *PipelineError) JobError() *JobError {
	msg := e.Message
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	return &JobError{
		Kind:     e.Kind,
		Stage:    e.Stage,
		Message:  msg,
		Detail:   e.Detail,
		ExitCode: e.ExitCode,
		TimedOut: e.TimedOut,
	}
}

// NewPipelineError creates a classified failure
func NewPipelineError(kind ErrorKind, stage Stage, op, message string, err error) *PipelineError {
	return &PipelineError{
		Kind:    kind,
		Stage:   stage,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// AsPipelineError extracts a PipelineError from err
func AsPipelineError(err error) (*PipelineError, bool) {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
