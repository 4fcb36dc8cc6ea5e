package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/pixelpress/api/internal/logger"
	"github.com/pixelpress/api/internal/model"
)

// JobRenderer is the part of service.VideoService the worker drives
type JobRenderer interface {
	StartRender(ctx context.Context, jobID string) (*model.GenerateResponse, error)
}

// RenderWorker processes queued render jobs
type RenderWorker struct {
	renderer JobRenderer
	log      *logger.Logger
}

func NewRenderWorker(renderer JobRenderer, log *logger.Logger) *RenderWorker {
	if log == nil {
		log = logger.NewDefault()
	}
	return &RenderWorker{
		renderer: renderer,
		log:      log.WithComponent("render_worker"),
	}
}

// ProcessTask handles render task processing. Failures are recorded on the
// job by the service, so the task is never retried.
func (w *RenderWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload model.RenderTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.JobID == "" {
		return fmt.Errorf("task payload has no job ID: %w", asynq.SkipRetry)
	}

	log := w.log.WithJobID(payload.JobID)
	log.Info("render task started")

	result, err := w.renderer.StartRender(logger.ContextWithJobID(ctx, payload.JobID), payload.JobID)
	if err != nil {
		log.Error("render task failed", "error", err.Error())
		return fmt.Errorf("render job %s: %v: %w", payload.JobID, err, asynq.SkipRetry)
	}

	log.Info("render task completed", "download_url", result.DownloadURL)
	return nil
}

// NewServeMux routes render tasks to w
func NewServeMux(taskType string, w *RenderWorker) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(taskType, w.ProcessTask)
	return mux
}
