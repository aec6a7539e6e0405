package main

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ynkmn/reactoruq/internal/handler"
)

type routes struct {
	health *handler.HealthHandler
	runs   *handler.RunsHandler
}

// registerRoutes registers all HTTP routes
func registerRoutes(app *fiber.App, r *routes) {
	r.health.RegisterRoutes(app)
	app.Get("/metrics", handler.Metrics())

	v1 := app.Group("/api/v1")
	r.runs.RegisterRoutes(v1)
}
