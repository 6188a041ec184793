package routes

import (
	"github.com/labstack/echo/v4"
	"github.com/docvault/docvault/cmd/docserver/container"
	"github.com/docvault/docvault/cmd/docserver/handlers"
)

// RegisterBlobRoutes registers raw-blob and download-ticket routes
func RegisterBlobRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewBlobHandler(c.Components, c.BlobStore, c.ArchiveService, c.TicketService)

	blobs := e.Group("/api/v1/blobs")
	{
		blobs.GET("/:id", h.GetBlob)            // GET /api/v1/blobs/{id}
		blobs.GET("/:id/members/*", h.GetMember) // GET /api/v1/blobs/{id}/members/{path}
	}

	// Ticketed downloads sit outside the API prefix: external converters
	// fetch them with nothing but the token.
	e.GET("/downloads/:token", h.RedeemDownload) // GET /downloads/{token}
}
