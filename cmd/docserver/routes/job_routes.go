package routes

import (
	"github.com/labstack/echo/v4"
	"github.com/docvault/docvault/cmd/docserver/container"
	"github.com/docvault/docvault/cmd/docserver/handlers"
)

// RegisterJobRoutes registers transcode-job routes
func RegisterJobRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewJobHandler(c.Components, c.Scheduler)

	jobs := e.Group("/api/v1/jobs")
	{
		jobs.GET("/:id", h.GetJob)                  // GET /api/v1/jobs/{id}
		jobs.POST("/:id/progress", h.IngestProgress) // POST /api/v1/jobs/{id}/progress (encoder callback)
	}
}
