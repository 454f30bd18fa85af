package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/iamstudio/brandrender/pkg/response"
)

// AppConfig holds the HTTP server settings.
type AppConfig struct {
	BodyLimit   int
	CORSOrigins string
	AccessLog   bool
}

// NewApp builds the fiber app with the global middleware stack.
func NewApp(cfg AppConfig) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler:          errorHandler,
		BodyLimit:             cfg.BodyLimit,
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	if cfg.AccessLog {
		app.Use(logger.New(logger.Config{
			Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
		}))
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  "GET,POST,OPTIONS",
		AllowHeaders:  "Origin,Content-Type,Accept",
		ExposeHeaders: "Content-Disposition,Retry-After",
	}))

	return app
}

// RegisterRoutes mounts the render API. startLimit guards job creation and
// may be nil. Every route is also served under /render/mp4 for the web client.
func RegisterRoutes(app *fiber.App, render *RenderHandler, health *HealthHandler, startLimit fiber.Handler) {
	app.Get("/health", health.Health)

	startHandlers := []fiber.Handler{render.Start}
	if startLimit != nil {
		startHandlers = append([]fiber.Handler{startLimit}, startHandlers...)
	}

	for _, prefix := range []string{"/render", "/render/mp4"} {
		group := app.Group(prefix)
		group.Post("/start", startHandlers...)
		group.Get("/status/:jobId", render.Status)
		group.Get("/download/:jobId", render.Download)
	}

	app.Use(func(c *fiber.Ctx) error {
		return response.NotFound(c, "Route not found")
	})
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
		message = e.Message
	}

	return response.Error(c, code, "", message, nil)
}
