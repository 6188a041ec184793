package handlers

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/docvault/docvault/cmd/docserver/middleware"
	"github.com/docvault/docvault/cmd/docserver/models"
	"github.com/docvault/docvault/cmd/docserver/service"
	"github.com/docvault/docvault/common/bootstrap"
)

// ArchiveHandler packs subtrees into zip downloads and unpacks stored
// archives into the tree
type ArchiveHandler struct {
	components *bootstrap.Components
	tree       *service.TreeService
	blobs      *service.BlobStore
	archives   *service.ArchiveService
	access     service.AccessChecker
}

// NewArchiveHandler creates a new archive handler
func NewArchiveHandler(components *bootstrap.Components, tree *service.TreeService, blobs *service.BlobStore, archives *service.ArchiveService, access service.AccessChecker) *ArchiveHandler {
	return &ArchiveHandler{
		components: components,
		tree:       tree,
		blobs:      blobs,
		archives:   archives,
		access:     access,
	}
}

// PackNode streams a node subtree as a zip archive. Unreadable entries
// are omitted rather than failing the download.
// GET /api/v1/nodes/:id/archive
func (h *ArchiveHandler) PackNode(c echo.Context) error {
	ctx := c.Request().Context()
	nodeID := c.Param("id")
	caller := middleware.GetCaller(c)

	node, err := h.tree.GetNode(ctx, nodeID)
	if err != nil {
		return httpError(err)
	}

	readable, err := h.access.CanRead(ctx, nodeID, caller)
	if err != nil {
		return httpError(err)
	}
	if !readable {
		return httpError(service.ErrForbidden)
	}

	c.Response().Header().Set(echo.HeaderContentType, "application/zip")
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename=%q`, node.Name+".zip"))
	c.Response().WriteHeader(http.StatusOK)

	// Headers are committed; a mid-stream failure can only truncate.
	if err := h.archives.Pack(ctx, c.Response(), []*models.Node{node}, caller); err != nil {
		h.components.Logger.Error("archive pack failed", "node_id", nodeID, "error", err)
		return err
	}

	return nil
}

// UnpackNode expands a stored zip blob into the destination container
// POST /api/v1/nodes/:id/unpack?blob=...
func (h *ArchiveHandler) UnpackNode(c echo.Context) error {
	ctx := c.Request().Context()
	destID := c.Param("id")
	caller := middleware.GetCaller(c)

	blobID := c.QueryParam("blob")
	if blobID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "blob is required")
	}

	dest, err := h.tree.GetNode(ctx, destID)
	if err != nil {
		return httpError(err)
	}

	f, blob, err := h.blobs.StreamOf(ctx, blobID)
	if err != nil {
		return httpError(err)
	}
	defer f.Close()

	if err := h.archives.Unpack(ctx, f, blob.Size, dest, caller); err != nil {
		h.components.Logger.Error("archive unpack failed", "dest", destID, "blob_id", blobID, "error", err)
		return httpError(err)
	}

	return c.NoContent(http.StatusNoContent)
}
