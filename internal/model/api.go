package model

import "time"

// SubmitResponse is returned after a document has been ingested
type SubmitResponse struct {
	JobID           string   `json:"job_id"`
	Status          JobState `json:"status"`
	Brand           string   `json:"brand"`
	BrandData       Brand    `json:"brand_data"`
	HasEmbeddedCode bool     `json:"has_embedded_code"`
}

// GenerateResponse is returned when a render finished or was queued
type GenerateResponse struct {
	JobID       string `json:"job_id"`
	Status      string `json:"status"`
	DownloadURL string `json:"download_url,omitempty"`
	Message     string `json:"message,omitempty"`
}

// GenerateStatusQueued is reported when a render was handed to the worker queue
const GenerateStatusQueued = "queued"

// StatusResponse is the externally visible job record
type StatusResponse struct {
	JobID           string     `json:"job_id"`
	Status          JobState   `json:"status"`
	Brand           Brand      `json:"brand"`
	HasEmbeddedCode bool       `json:"has_embedded_code"`
	CompositionID   string     `json:"composition_id"`
	Error           *JobError  `json:"error,omitempty"`
	BundleName      string     `json:"bundle_name,omitempty"`
	DownloadURL     string     `json:"download_url,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// NewStatusResponse builds the status view of a job
func NewStatusResponse(job *Job) *StatusResponse {
	return &StatusResponse{
		JobID:           job.ID,
		Status:          job.State,
		Brand:           job.Brand,
		HasEmbeddedCode: job.HasEmbeddedCode,
		CompositionID:   job.CompositionID,
		Error:           job.Error,
		BundleName:      job.BundleName,
		DownloadURL:     job.DownloadURL,
		CreatedAt:       job.CreatedAt,
		StartedAt:       job.StartedAt,
		CompletedAt:     job.CompletedAt,
	}
}

// RenderTaskPayload is the asynq payload for a queued render
type RenderTaskPayload struct {
	JobID string `json:"jobId"`
}
