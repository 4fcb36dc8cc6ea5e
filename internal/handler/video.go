package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/pixelpress/api/internal/model"
	"github.com/pixelpress/api/internal/service"
	"github.com/pixelpress/api/pkg/response"
)

// DocumentField is the multipart field carrying the uploaded document
const DocumentField = "pdf"

type VideoHandler struct {
	service   *service.VideoService
	validator *validator.Validate
}

func NewVideoHandler(svc *service.VideoService, v *validator.Validate) *VideoHandler {
	return &VideoHandler{
		service:   svc,
		validator: v,
	}
}

type jobParams struct {
	JobID string `validate:"required,uuid"`
}

// Upload handles POST /api/upload-pdf
func (h *VideoHandler) Upload(c *fiber.Ctx) error {
	file, err := c.FormFile(DocumentField)
	if err != nil {
		return response.ValidationError(c, "No PDF", nil)
	}

	f, err := file.Open()
	if err != nil {
		return response.ValidationError(c, "Unreadable upload", nil)
	}
	defer f.Close()

	result, err := h.service.Submit(c.UserContext(), f)
	if err != nil {
		return h.serviceError(c, err)
	}

	return response.Created(c, result)
}

// Generate handles POST /api/generate/:jobId. The render runs inline unless
// a worker queue is configured, in which case 202 is returned.
func (h *VideoHandler) Generate(c *fiber.Ctx) error {
	jobID, err := h.jobID(c)
	if err != nil {
		return response.ValidationError(c, "Invalid job ID", formatValidationErrors(err))
	}

	if h.service.AsyncEnabled() {
		result, err := h.service.EnqueueRender(c.UserContext(), jobID)
		if err != nil {
			return h.serviceError(c, err)
		}
		if result.Status == model.GenerateStatusQueued {
			return response.Accepted(c, result)
		}
		return response.OK(c, result)
	}

	result, err := h.service.StartRender(c.UserContext(), jobID)
	if err != nil {
		return h.serviceError(c, err)
	}

	return response.OK(c, result)
}

// Status handles GET /api/status/:jobId
func (h *VideoHandler) Status(c *fiber.Ctx) error {
	jobID, err := h.jobID(c)
	if err != nil {
		return response.ValidationError(c, "Invalid job ID", formatValidationErrors(err))
	}

	result, err := h.service.GetStatus(c.UserContext(), jobID)
	if err != nil {
		return h.serviceError(c, err)
	}

	return response.OK(c, result)
}

// Download handles GET /api/download/:jobId
func (h *VideoHandler) Download(c *fiber.Ctx) error {
	jobID, err := h.jobID(c)
	if err != nil {
		return response.ValidationError(c, "Invalid job ID", formatValidationErrors(err))
	}

	bundle, err := h.service.Bundle(c.UserContext(), jobID)
	if err != nil {
		if errors.Is(err, model.ErrBundleNotFound) {
			return response.NotFound(c, "Video not found")
		}
		return h.serviceError(c, err)
	}

	return c.Download(bundle.Path, bundle.Name)
}

// Health handles GET /api/health
func (h *VideoHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "healthy",
		"service": "Video Renderer",
	})
}

func (h *VideoHandler) jobID(c *fiber.Ctx) (string, error) {
	params := jobParams{JobID: c.Params("jobId")}
	if err := h.validator.Struct(&params); err != nil {
		return "", err
	}
	return params.JobID, nil
}

func (h *VideoHandler) serviceError(c *fiber.Ctx, err error) error {
	if pe, ok := model.AsPipelineError(err); ok {
		return response.PipelineFailure(c, pe)
	}

	var te *model.TransitionError
	switch {
	case errors.Is(err, model.ErrJobNotFound):
		return response.NotFound(c, "Job not found")
	case errors.As(err, &te):
		return response.Conflict(c, "Job cannot be rendered in its current state", fiber.Map{
			"status": te.From,
		})
	case errors.Is(err, model.ErrInvalidTransition):
		return response.Conflict(c, "Job cannot be rendered in its current state", nil)
	}
	return response.ServiceError(c, err.Error())
}

func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		fields := make(map[string]string)
		for _, e := range validationErrors {
			fields[e.Field()] = e.Tag()
		}
		return fields
	}
	return nil
}
