package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/pixelpress/api/internal/client"
	"github.com/pixelpress/api/internal/compose"
	"github.com/pixelpress/api/internal/extract"
	"github.com/pixelpress/api/internal/logger"
	"github.com/pixelpress/api/internal/model"
	"github.com/pixelpress/api/internal/packager"
	"github.com/pixelpress/api/internal/registry"
	"github.com/pixelpress/api/internal/supervisor"
	"github.com/pixelpress/api/internal/workspace"
)

const (
	TaskTypeRender = "video:render"
	QueueRender    = "render"
)

// Renderer runs the external render of a materialized workspace
type Renderer interface {
	Render(ctx context.Context, ws *workspace.Workspace, onPhase supervisor.PhaseFunc) (*supervisor.Result, error)
}

// Notifier pushes job events to subscribers
type Notifier interface {
	BroadcastState(jobID string, state model.JobState, phase string)
	BroadcastComplete(jobID string, result interface{})
	BroadcastError(jobID string, code, message string, stage model.Stage)
}

// TaskEnqueuer is the part of *asynq.Client the service uses
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type VideoOptions struct {
	WorkspaceRoot string
	// AllowEmbedded false ignores programs embedded in documents.
	AllowEmbedded bool
	Manifest      workspace.ManifestConfig
	// DetailLimit bounds the process output stored on a failed job.
	DetailLimit int
}

// VideoDeps are the collaborators of VideoService. Storage, Notifier and
// Queue are optional.
type VideoDeps struct {
	Registry  registry.Registry
	Extractor *extract.Extractor
	Renderer  Renderer
	Packager  *packager.Packager
	Storage   client.BundleStorage
	Notifier  Notifier
	Queue     TaskEnqueuer
	Logger    *logger.Logger
}

// VideoService runs the document to video pipeline
type VideoService struct {
	opts      VideoOptions
	reg       registry.Registry
	extractor *extract.Extractor
	renderer  Renderer
	packager  *packager.Packager
	storage   client.BundleStorage
	notifier  Notifier
	queue     TaskEnqueuer
	log       *logger.Logger
}

func NewVideoService(opts VideoOptions, deps VideoDeps) *VideoService {
	if opts.DetailLimit <= 0 {
		opts.DetailLimit = 4000
	}
	log := deps.Logger
	if log == nil {
		log = logger.NewDefault()
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = nopNotifier{}
	}
	pkg := deps.Packager
	if pkg == nil {
		pkg = packager.New()
	}
	return &VideoService{
		opts:      opts,
		reg:       deps.Registry,
		extractor: deps.Extractor,
		renderer:  deps.Renderer,
		packager:  pkg,
		storage:   deps.Storage,
		notifier:  notifier,
		queue:     deps.Queue,
		log:       log.WithComponent("video_service"),
	}
}

// AsyncEnabled reports whether renders can be handed to the worker queue
func (s *VideoService) AsyncEnabled() bool {
	return s.queue != nil
}

// Submit ingests a document: the upload is stored in a fresh workspace, brand
// parameters and embedded programs are extracted, and the render project is
// materialized. The job is registered only once all of that succeeded.
func (s *VideoService) Submit(ctx context.Context, document io.Reader) (*model.SubmitResponse, error) {
	const op = "service.Submit"
	jobID := uuid.New().String()
	log := s.log.WithJobID(jobID)

	ws, err := workspace.Create(s.opts.WorkspaceRoot, jobID)
	if err != nil {
		return nil, model.NewPipelineError(model.KindMaterialization, model.StageMaterialize, op, "failed to create workspace", err)
	}

	resp, err := s.ingest(ctx, ws, document)
	if err != nil {
		if rmErr := ws.Remove(); rmErr != nil {
			log.Warn("failed to remove workspace", "error", rmErr.Error())
		}
		log.Error("submit failed", "error", err.Error())
		return nil, err
	}

	log.Info("document ingested",
		"brand", resp.Brand,
		"embedded", resp.HasEmbeddedCode,
	)
	return resp, nil
}

func (s *VideoService) ingest(ctx context.Context, ws *workspace.Workspace, document io.Reader) (*model.SubmitResponse, error) {
	const op = "service.Submit"

	if _, err := ws.SaveDocument(document); err != nil {
		return nil, model.NewPipelineError(model.KindMaterialization, model.StageMaterialize, op, "failed to store document", err)
	}

	extracted := s.extractor.ExtractFile(ws.DocumentPath())

	embedded, orchestration := extracted.Composition, extracted.Orchestration
	if !s.opts.AllowEmbedded {
		embedded, orchestration = "", ""
	}
	resolution := compose.Resolve(extracted.Brand, embedded)

	if err := ws.Materialize(resolution, orchestration, s.opts.Manifest); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	job := &model.Job{
		ID:              ws.JobID,
		State:           model.JobStateCreated,
		Brand:           extracted.Brand,
		HasEmbeddedCode: resolution.Embedded,
		CompositionID:   resolution.CompositionID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.reg.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to register job: %w", err)
	}
	job, err := registry.Transition(ctx, s.reg, ws.JobID, model.JobStateExtracted, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register job: %w", err)
	}
	s.notifier.BroadcastState(job.ID, job.State, "")

	return &model.SubmitResponse{
		JobID:           job.ID,
		Status:          job.State,
		Brand:           job.Brand.Name,
		BrandData:       job.Brand,
		HasEmbeddedCode: job.HasEmbeddedCode,
	}, nil
}

// StartRender renders an extracted job synchronously and packages the result.
// A complete job returns its existing download reference; any other state than
// extracted is rejected with model.ErrInvalidTransition.
func (s *VideoService) StartRender(ctx context.Context, jobID string) (*model.GenerateResponse, error) {
	log := s.log.WithJobID(jobID)

	job, err := s.reg.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.State == model.JobStateComplete {
		return completedResponse(job), nil
	}

	ws, err := workspace.Open(s.opts.WorkspaceRoot, jobID)
	if err != nil {
		if errors.Is(err, workspace.ErrInvalidJobID) {
			return nil, model.ErrJobNotFound
		}
		return nil, err
	}

	job, err = registry.Transition(ctx, s.reg, jobID, model.JobStateGenerating, nil)
	if err != nil {
		return nil, err
	}
	s.notifier.BroadcastState(jobID, job.State, "")
	log.Info("render started", "composition", job.CompositionID)

	result, err := s.renderer.Render(ctx, ws, func(p supervisor.Phase) {
		s.notifier.BroadcastState(jobID, model.JobStateGenerating, string(p))
	})
	if err != nil {
		return nil, s.fail(ctx, jobID, err)
	}

	bundle, err := s.packager.Package(ws, job.Brand, result.OutputFiles)
	if err != nil {
		return nil, s.fail(ctx, jobID, err)
	}

	downloadURL := s.publish(ctx, jobID, bundle)

	job, err = registry.Transition(context.WithoutCancel(ctx), s.reg, jobID, model.JobStateComplete, func(j *model.Job) {
		j.BundleName = bundle.Name
		j.DownloadURL = downloadURL
	})
	if err != nil {
		return nil, err
	}

	resp := completedResponse(job)
	s.notifier.BroadcastComplete(jobID, resp)
	log.Info("render complete", "bundle", bundle.Name, "size", bundle.Size)
	return resp, nil
}

// EnqueueRender hands an extracted job to the worker queue. Enqueueing the
// same job twice is a no-op.
func (s *VideoService) EnqueueRender(ctx context.Context, jobID string) (*model.GenerateResponse, error) {
	if s.queue == nil {
		return nil, errors.New("render queue not configured")
	}

	job, err := s.reg.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	switch job.State {
	case model.JobStateComplete:
		return completedResponse(job), nil
	case model.JobStateExtracted:
	default:
		return nil, &model.TransitionError{JobID: jobID, From: job.State, To: model.JobStateGenerating}
	}

	payload, err := json.Marshal(model.RenderTaskPayload{JobID: jobID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	_, err = s.queue.EnqueueContext(ctx, asynq.NewTask(TaskTypeRender, payload),
		asynq.Queue(QueueRender),
		asynq.TaskID(jobID),
		asynq.MaxRetry(0),
		asynq.Retention(24*time.Hour),
	)
	if err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	s.log.WithJobID(jobID).Info("render queued")
	return &model.GenerateResponse{
		JobID:   jobID,
		Status:  model.GenerateStatusQueued,
		Message: "Render queued",
	}, nil
}

// GetStatus returns the externally visible job record
func (s *VideoService) GetStatus(ctx context.Context, jobID string) (*model.StatusResponse, error) {
	job, err := s.reg.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return model.NewStatusResponse(job), nil
}

// Bundle locates the packaged archive of a job
func (s *VideoService) Bundle(ctx context.Context, jobID string) (*packager.Bundle, error) {
	if _, err := s.reg.Get(ctx, jobID); err != nil {
		return nil, err
	}
	ws, err := workspace.Open(s.opts.WorkspaceRoot, jobID)
	if err != nil {
		if errors.Is(err, workspace.ErrInvalidJobID) {
			return nil, model.ErrJobNotFound
		}
		return nil, err
	}
	return packager.Locate(ws)
}

// fail records err on the job, moving it to failed, and returns the
// classified error.
func (s *VideoService) fail(ctx context.Context, jobID string, err error) error {
	pe, ok := model.AsPipelineError(err)
	if !ok {
		pe = model.NewPipelineError(model.KindRender, model.StageRender, "service.StartRender", "render failed", err)
	}
	jobErr := pe.JobError()
	jobErr.Detail = supervisor.Tail(jobErr.Detail, s.opts.DetailLimit)

	_, uerr := registry.Transition(context.WithoutCancel(ctx), s.reg, jobID, model.JobStateFailed, func(j *model.Job) {
		j.Error = jobErr
	})
	if uerr != nil {
		s.log.WithJobID(jobID).Error("failed to record job failure", "error", uerr.Error())
	}

	s.log.WithJobID(jobID).Error("render failed",
		"kind", string(pe.Kind),
		"stage", string(pe.Stage),
		"timed_out", pe.TimedOut,
	)
	s.notifier.BroadcastError(jobID, string(pe.Kind), jobErr.Message, pe.Stage)
	return pe
}

// publish uploads the bundle when object storage is configured. The local
// download route is returned when there is no storage or the upload fails.
func (s *VideoService) publish(ctx context.Context, jobID string, bundle *packager.Bundle) string {
	local := DownloadPath(jobID)
	if s.storage == nil {
		return local
	}
	log := s.log.WithJobID(jobID)

	f, err := os.Open(bundle.Path)
	if err != nil {
		log.Warn("bundle publish skipped", "error", err.Error())
		return local
	}
	defer f.Close()

	key := client.BundleKey(jobID, bundle.Name)
	if err := s.storage.PutBundle(ctx, key, f); err != nil {
		log.Warn("bundle publish failed", "error", err.Error())
		return local
	}
	url, err := s.storage.BundleURL(ctx, key)
	if err != nil {
		log.Warn("bundle url unavailable", "error", err.Error())
		return local
	}
	log.Info("bundle published", "key", key)
	return url
}

// DownloadPath is the local download route of a job
func DownloadPath(jobID string) string {
	return "/api/download/" + jobID
}

func completedResponse(job *model.Job) *model.GenerateResponse {
	url := job.DownloadURL
	if url == "" {
		url = DownloadPath(job.ID)
	}
	return &model.GenerateResponse{
		JobID:       job.ID,
		Status:      string(model.JobStateComplete),
		DownloadURL: url,
		Message:     "Video rendered!",
	}
}

type nopNotifier struct{}

func (nopNotifier) BroadcastState(string, model.JobState, string)      {}
func (nopNotifier) BroadcastComplete(string, interface{})              {}
func (nopNotifier) BroadcastError(string, string, string, model.Stage) {}
