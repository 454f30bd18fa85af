package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/iamstudio/brandrender/internal/service"
)

// HealthInfo describes the configured backends reported by /health.
type HealthInfo struct {
	Engine   string `json:"engine"`
	Queue    string `json:"queue"`
	Store    string `json:"store"`
	Artifact string `json:"artifact"`
}

type HealthHandler struct {
	service *service.RenderService
	ready   func() bool
	info    HealthInfo
}

// NewHealthHandler builds the liveness handler. ready reports whether the
// template bundle has been built.
func NewHealthHandler(svc *service.RenderService, ready func() bool, info HealthInfo) *HealthHandler {
	return &HealthHandler{service: svc, ready: ready, info: info}
}

// Health handles GET /health. It answers 200 as long as the process serves
// requests; backend problems are reported in the body.
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	body := fiber.Map{
		"ok":       true,
		"service":  "render",
		"ts":       time.Now().UnixMilli(),
		"backends": h.info,
	}
	if h.ready != nil {
		body["bundleReady"] = h.ready()
	}
	if h.service != nil {
		depth, err := h.service.QueueDepth(c.UserContext())
		if err != nil {
			body["queueError"] = err.Error()
		} else {
			body["queueDepth"] = depth
		}
	}
	return c.JSON(body)
}
