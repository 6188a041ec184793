package routes

import (
	"github.com/labstack/echo/v4"
	"github.com/docvault/docvault/cmd/docserver/container"
	"github.com/docvault/docvault/cmd/docserver/handlers"
	"github.com/docvault/docvault/cmd/docserver/middleware"
)

// RegisterNodeRoutes registers all tree-node routes
func RegisterNodeRoutes(e *echo.Echo, c *container.Container) {
	nodeHandler := handlers.NewNodeHandler(c.Components, c.TreeService, c.AccessChecker, c.Reaper)
	contentHandler := handlers.NewContentHandler(c.Components, c.TreeService, c.BlobStore, c.AccessChecker, c.Scheduler, c.ThumbnailService)
	rightHandler := handlers.NewRightHandler(c.Components, c.RightService, c.AccessChecker)
	archiveHandler := handlers.NewArchiveHandler(c.Components, c.TreeService, c.BlobStore, c.ArchiveService, c.AccessChecker)

	// Node routes with caller identity extraction
	nodes := e.Group("/api/v1/nodes")
	nodes.Use(middleware.ExtractCaller()) // Extract X-User-ID into context
	{
		nodes.GET("/:id", nodeHandler.GetNode)               // GET /api/v1/nodes/{id}?expand=1
		nodes.DELETE("/:id", nodeHandler.DeleteNode)         // DELETE /api/v1/nodes/{id}
		nodes.POST("/:id/children", nodeHandler.CreateChild) // POST /api/v1/nodes/{id}/children?name=&kind=
		nodes.GET("/:id/children", nodeHandler.ListChildren) // GET /api/v1/nodes/{id}/children
		nodes.POST("/:id/rename", nodeHandler.RenameNode)    // POST /api/v1/nodes/{id}/rename?name=
		nodes.POST("/:id/move", nodeHandler.MoveNode)        // POST /api/v1/nodes/{id}/move?parent=

		nodes.GET("/:id/content", contentHandler.GetContent)     // GET /api/v1/nodes/{id}/content
		nodes.PUT("/:id/content", contentHandler.PutContent)     // PUT /api/v1/nodes/{id}/content
		nodes.GET("/:id/media", contentHandler.GetMedia)         // GET /api/v1/nodes/{id}/media?wait=1
		nodes.GET("/:id/thumbnail", contentHandler.GetThumbnail) // GET /api/v1/nodes/{id}/thumbnail

		nodes.POST("/:id/rights", rightHandler.GrantRight) // POST /api/v1/nodes/{id}/rights
		nodes.GET("/:id/rights", rightHandler.ListRights)  // GET /api/v1/nodes/{id}/rights

		nodes.GET("/:id/archive", archiveHandler.PackNode)  // GET /api/v1/nodes/{id}/archive
		nodes.POST("/:id/unpack", archiveHandler.UnpackNode) // POST /api/v1/nodes/{id}/unpack?blob=
	}
}
