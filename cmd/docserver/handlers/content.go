package handlers

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/docvault/docvault/cmd/docserver/middleware"
	"github.com/docvault/docvault/cmd/docserver/service"
	"github.com/docvault/docvault/common/bootstrap"
)

// ContentHandler serves node content, web renditions and thumbnails
type ContentHandler struct {
	components *bootstrap.Components
	tree       *service.TreeService
	blobs      *service.BlobStore
	access     service.AccessChecker
	scheduler  *service.Scheduler
	thumbs     *service.ThumbnailService
}

// NewContentHandler creates a new content handler
func NewContentHandler(components *bootstrap.Components, tree *service.TreeService, blobs *service.BlobStore, access service.AccessChecker, scheduler *service.Scheduler, thumbs *service.ThumbnailService) *ContentHandler {
	return &ContentHandler{
		components: components,
		tree:       tree,
		blobs:      blobs,
		access:     access,
		scheduler:  scheduler,
		thumbs:     thumbs,
	}
}

// GetContent streams a node's primary bytes, honoring Range requests
// GET /api/v1/nodes/:id/content
func (h *ContentHandler) GetContent(c echo.Context) error {
	ctx := c.Request().Context()
	nodeID := c.Param("id")
	caller := middleware.GetCaller(c)

	if err := h.requireRead(c, nodeID, caller); err != nil {
		return err
	}

	item, err := h.tree.GetItem(ctx, nodeID)
	if err != nil {
		return httpError(err)
	}

	rc, blob, err := item.GetContent(ctx)
	if err != nil {
		return httpError(err)
	}
	defer rc.Close()

	c.Response().Header().Set(echo.HeaderContentType, blob.Mimetype)

	// The disk store hands out *os.File, so ranged reads come free.
	if rs, ok := rc.(io.ReadSeeker); ok {
		http.ServeContent(c.Response(), c.Request(), item.Node().Name, item.Node().MTime, rs)
		return nil
	}

	return c.Stream(http.StatusOK, blob.Mimetype, rc)
}

// PutContent replaces a node's content with the request body
// PUT /api/v1/nodes/:id/content
func (h *ContentHandler) PutContent(c echo.Context) error {
	ctx := c.Request().Context()
	nodeID := c.Param("id")
	caller := middleware.GetCaller(c)

	if err := h.requireWrite(c, nodeID, caller); err != nil {
		return err
	}

	node, err := h.tree.ReplaceContent(ctx, nodeID, c.Request().Body)
	if err != nil {
		h.components.Logger.Error("failed to replace content", "node_id", nodeID, "error", err)
		return httpError(err)
	}

	return c.JSON(http.StatusOK, node)
}

// GetMedia serves a browser-playable rendition: 200 with the stream when
// ready, 202 with a job reference while a transcode is in flight.
// GET /api/v1/nodes/:id/media?wait=1
func (h *ContentHandler) GetMedia(c echo.Context) error {
	ctx := c.Request().Context()
	nodeID := c.Param("id")
	caller := middleware.GetCaller(c)

	if err := h.requireRead(c, nodeID, caller); err != nil {
		return err
	}

	node, err := h.tree.GetNode(ctx, nodeID)
	if err != nil {
		return httpError(err)
	}

	f, blob, job, err := h.scheduler.GetReadyStreamOrJob(ctx, node)
	if err != nil {
		return httpError(err)
	}

	if f != nil {
		defer f.Close()
		c.Response().Header().Set(echo.HeaderContentType, blob.Mimetype)
		http.ServeContent(c.Response(), c.Request(), node.Name, blob.CTime, f)
		return nil
	}

	if c.QueryParam("wait") == "1" {
		// Blocks only this request's own flow; the job keeps running
		// if the caller gives up.
		select {
		case <-job.Done():
		case <-ctx.Done():
			return c.JSON(http.StatusAccepted, job.Status())
		}

		result := job.Result()
		if result == nil {
			// Degrade gracefully: the rendition failed, the caller can
			// fall back to the original bytes.
			return echo.NewHTTPError(http.StatusBadGateway, "transcode failed")
		}

		rf, rblob, err := h.blobs.StreamOf(ctx, result.ID)
		if err != nil {
			return httpError(err)
		}
		defer rf.Close()
		c.Response().Header().Set(echo.HeaderContentType, rblob.Mimetype)
		http.ServeContent(c.Response(), c.Request(), node.Name, rblob.CTime, rf)
		return nil
	}

	return c.JSON(http.StatusAccepted, job.Status())
}

// GetThumbnail ensures and streams a node's thumbnail variant
// GET /api/v1/nodes/:id/thumbnail
func (h *ContentHandler) GetThumbnail(c echo.Context) error {
	ctx := c.Request().Context()
	nodeID := c.Param("id")
	caller := middleware.GetCaller(c)

	if err := h.requireRead(c, nodeID, caller); err != nil {
		return err
	}

	node, err := h.tree.GetNode(ctx, nodeID)
	if err != nil {
		return httpError(err)
	}

	blob, err := h.thumbs.Ensure(ctx, node)
	if err != nil {
		h.components.Logger.Error("thumbnail generation failed", "node_id", nodeID, "error", err)
		return httpError(err)
	}
	if blob == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no thumbnail for this type")
	}

	f, _, err := h.blobs.StreamOf(ctx, blob.ID)
	if err != nil {
		return httpError(err)
	}
	defer f.Close()

	c.Response().Header().Set(echo.HeaderContentType, blob.Mimetype)
	http.ServeContent(c.Response(), c.Request(), node.Name+".png", blob.CTime, f)
	return nil
}

func (h *ContentHandler) requireRead(c echo.Context, nodeID, caller string) error {
	ok, err := h.access.CanRead(c.Request().Context(), nodeID, caller)
	if err != nil {
		return httpError(err)
	}
	if !ok {
		return httpError(service.ErrForbidden)
	}
	return nil
}

func (h *ContentHandler) requireWrite(c echo.Context, nodeID, caller string) error {
	ok, err := h.access.CanWrite(c.Request().Context(), nodeID, caller)
	if err != nil {
		return httpError(err)
	}
	if !ok {
		return httpError(service.ErrForbidden)
	}
	return nil
}
