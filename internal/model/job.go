package model

import "time"

// Job represents one document-to-video render job
type Job struct {
	ID              string     `json:"jobId"`
	State           JobState   `json:"status"`
	Brand           Brand      `json:"brand"`
	HasEmbeddedCode bool       `json:"hasEmbeddedCode"`
	CompositionID   string     `json:"compositionId"`
	Error           *JobError  `json:"error,omitempty"`
	BundleName      string     `json:"bundleName,omitempty"`
	DownloadURL     string     `json:"downloadUrl,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
	StartedAt       *time.Time `json:"startedAt,omitempty"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
}

// JobError is the failure cause recorded on a failed job
type JobError struct {
	Kind     ErrorKind `json:"kind"`
	Stage    Stage     `json:"stage"`
	Message  string    `json:"message"`
	Detail   string    `json:"detail,omitempty"`
	ExitCode *int      `json:"exitCode,omitempty"`
	TimedOut bool      `json:"timedOut,omitempty"`
}

// Clone returns a deep copy so registry callers never share mutable state
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	if j.Error != nil {
		e := *j.Error
		if j.Error.ExitCode != nil {
			code := *j.Error.ExitCode
			e.ExitCode = &code
		}
		c.Error = &e
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// TransitionTo moves the job forward, stamping timestamps
func (j *Job) TransitionTo(next JobState, now time.Time) error {
	if !j.State.CanTransitionTo(next) {
		return &TransitionError{JobID: j.ID, From: j.State, To: next}
	}
	j.State = next
	j.UpdatedAt = now
	switch next {
	case JobStateGenerating:
		j.StartedAt = &now
	case JobStateComplete, JobStateFailed:
		j.CompletedAt = &now
	}
	return nil
}
