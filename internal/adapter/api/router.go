package api

import (
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
)

func SetupRouter(app *fiber.App, handler *AnalysisHandler) {
	// Middleware
	app.Use(logger.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status":  "healthy",
			"version": os.Getenv("APP_VERSION"),
			"env":     os.Getenv("ENV"),
		})
	})

	// API Versioning
	v1 := app.Group("/v1")

	v1.Post("/analyze", handler.HandleAnalyze)
	v1.Post("/chat", handler.HandleChat)
	v1.Get("/stats", handler.HandleStats)
	v1.Post("/reset", handler.HandleReset)

	history := v1.Group("/history")
	history.Post("/", handler.HandleHistoryCreate)
	history.Get("/:kind", handler.HandleHistoryList)
	history.Get("/:kind/:id", handler.HandleHistoryGet)
	history.Put("/:kind/:id", handler.HandleHistoryUpdate)
	history.Delete("/:kind/:id", handler.HandleHistoryDelete)
}
