package handler

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/iamstudio/brandrender/internal/model"
	"github.com/iamstudio/brandrender/internal/service"
	"github.com/iamstudio/brandrender/pkg/response"
)

type RenderHandler struct {
	service   *service.RenderService
	validator *validator.Validate
	log       zerolog.Logger
}

func NewRenderHandler(svc *service.RenderService, v *validator.Validate, logger zerolog.Logger) *RenderHandler {
	return &RenderHandler{
		service:   svc,
		validator: v,
		log:       logger.With().Str("component", "http").Logger(),
	}
}

// Start handles POST /render/start
func (h *RenderHandler) Start(c *fiber.Ctx) error {
	var req model.RenderStartRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	req.Normalize()

	if err := h.validator.Struct(&req); err != nil {
		fields := formatValidationErrors(err)
		return response.ValidationError(c, validationMessage(fields), fields)
	}

	jobID, err := h.service.StartRender(c.UserContext(), req.ToRenderRequest())
	if err != nil {
		if errors.Is(err, service.ErrQueueFull) {
			return response.QueueFull(c)
		}
		h.log.Error().Err(err).Msg("start render failed")
		return response.ServiceError(c, "Failed to start render")
	}

	return response.OK(c, model.RenderStartResponse{JobID: jobID})
}

// Status handles GET /render/status/:jobId
func (h *RenderHandler) Status(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	job, err := h.service.GetStatus(c.UserContext(), jobID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return response.NotFound(c, "Job not found")
		}
		h.log.Error().Err(err).Str("job_id", jobID).Msg("status lookup failed")
		return response.ServiceError(c, "Failed to load job")
	}

	return response.OK(c, model.RenderStatusResponse{Job: model.NewJobView(job)})
}

// Download handles GET /render/download/:jobId
func (h *RenderHandler) Download(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	art, err := h.service.OpenArtifact(c.UserContext(), jobID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrConflict):
			return response.Conflict(c, "Job not finished yet")
		case errors.Is(err, service.ErrNotFound):
			return response.NotFound(c, "Video not found")
		}
		h.log.Error().Err(err).Str("job_id", jobID).Msg("download failed")
		return response.ServiceError(c, "Failed to load video")
	}

	c.Set(fiber.HeaderContentType, "video/mp4")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, art.Filename))
	return c.SendStream(art.Body, int(art.Size))
}
