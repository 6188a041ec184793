package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/docvault/docvault/cmd/docserver/service"
	"github.com/docvault/docvault/common/bootstrap"
)

// BlobHandler serves raw blob bytes, archive members and ticketed
// downloads
type BlobHandler struct {
	components *bootstrap.Components
	blobs      *service.BlobStore
	archives   *service.ArchiveService
	tickets    *service.TicketService
}

// NewBlobHandler creates a new blob handler
func NewBlobHandler(components *bootstrap.Components, blobs *service.BlobStore, archives *service.ArchiveService, tickets *service.TicketService) *BlobHandler {
	return &BlobHandler{
		components: components,
		blobs:      blobs,
		archives:   archives,
		tickets:    tickets,
	}
}

// GetBlob streams a blob's bytes by id, honoring Range requests
// GET /api/v1/blobs/:id
func (h *BlobHandler) GetBlob(c echo.Context) error {
	ctx := c.Request().Context()
	blobID := c.Param("id")

	f, blob, err := h.blobs.StreamOf(ctx, blobID)
	if err != nil {
		return httpError(err)
	}
	defer f.Close()

	c.Response().Header().Set(echo.HeaderContentType, blob.Mimetype)
	http.ServeContent(c.Response(), c.Request(), blobID, blob.CTime, f)
	return nil
}

// GetMember streams one member of a zip-archive blob with byte-range
// semantics over the decompressed stream
// GET /api/v1/blobs/:id/members/*
func (h *BlobHandler) GetMember(c echo.Context) error {
	ctx := c.Request().Context()
	blobID := c.Param("id")
	memberPath := c.Param("*")

	if memberPath == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "member path is required")
	}

	ms, err := h.archives.OpenMember(ctx, blobID, memberPath)
	if err != nil {
		h.components.Logger.Error("failed to open archive member", "blob_id", blobID, "member", memberPath, "error", err)
		return httpError(err)
	}
	defer ms.Close()

	// Member mtimes are not tracked; a zero modtime skips Last-Modified.
	http.ServeContent(c.Response(), c.Request(), memberPath, time.Time{}, ms)
	return nil
}

// RedeemDownload consumes a single-use download ticket and streams the
// blob it points to. A second request for the same token is a 404.
// GET /downloads/:token
func (h *BlobHandler) RedeemDownload(c echo.Context) error {
	ctx := c.Request().Context()
	token := c.Param("token")

	blobID, err := h.tickets.Redeem(ctx, token)
	if err != nil {
		return httpError(err)
	}

	f, blob, err := h.blobs.StreamOf(ctx, blobID)
	if err != nil {
		return httpError(err)
	}
	defer f.Close()

	c.Response().Header().Set(echo.HeaderContentType, blob.Mimetype)
	http.ServeContent(c.Response(), c.Request(), blobID, blob.CTime, f)
	return nil
}
