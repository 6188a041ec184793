package handlers

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/docvault/docvault/cmd/docserver/middleware"
	"github.com/docvault/docvault/cmd/docserver/service"
	"github.com/docvault/docvault/common/bootstrap"
)

// NodeHandler handles tree-node operations
type NodeHandler struct {
	components *bootstrap.Components
	tree       *service.TreeService
	access     service.AccessChecker
	reaper     *service.Reaper
}

// NewNodeHandler creates a new node handler
func NewNodeHandler(components *bootstrap.Components, tree *service.TreeService, access service.AccessChecker, reaper *service.Reaper) *NodeHandler {
	return &NodeHandler{
		components: components,
		tree:       tree,
		access:     access,
		reaper:     reaper,
	}
}

// GetNode serializes a node, expanding one level of children on request
// GET /api/v1/nodes/:id?expand=1
func (h *NodeHandler) GetNode(c echo.Context) error {
	ctx := c.Request().Context()
	nodeID := c.Param("id")
	caller := middleware.GetCaller(c)

	if err := h.requireRead(c, nodeID, caller); err != nil {
		return err
	}

	item, err := h.tree.GetItem(ctx, nodeID)
	if err != nil {
		h.components.Logger.Error("failed to load node", "node_id", nodeID, "error", err)
		return httpError(err)
	}

	expand := c.QueryParam("expand") == "1" || c.QueryParam("expand") == "true"

	out, err := item.ToJSON(ctx, expand)
	if err != nil {
		h.components.Logger.Error("failed to serialize node", "node_id", nodeID, "error", err)
		return httpError(err)
	}

	return c.JSON(http.StatusOK, out)
}

// CreateChild creates a folder or uploads a file under a parent node
// POST /api/v1/nodes/:id/children?name=...&kind=folder
func (h *NodeHandler) CreateChild(c echo.Context) error {
	ctx := c.Request().Context()
	parentID := c.Param("id")
	caller := middleware.GetCaller(c)

	if err := h.requireWrite(c, parentID, caller); err != nil {
		return err
	}

	name := c.QueryParam("name")
	if name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name is required")
	}

	kind := c.QueryParam("kind")
	if kind == "folder" {
		node, err := h.tree.CreateFolder(ctx, parentID, name, caller)
		if err != nil {
			h.components.Logger.Error("failed to create folder", "parent_id", parentID, "error", err)
			return httpError(err)
		}
		return c.JSON(http.StatusCreated, node)
	}

	// A non-folder kind is a structural type tag ("url", "extdoc");
	// absent that, the node's type is the upload's mimetype.
	mimetype := kind
	if mimetype == "" {
		mimetype = c.Request().Header.Get(echo.HeaderContentType)
	}
	if mimetype == "" || strings.HasPrefix(mimetype, "application/x-www-form-urlencoded") {
		mimetype = "application/octet-stream"
	}

	node, err := h.tree.CreateFile(ctx, parentID, name, mimetype, caller, c.Request().Body)
	if err != nil {
		h.components.Logger.Error("failed to create file", "parent_id", parentID, "error", err)
		return httpError(err)
	}

	return c.JSON(http.StatusCreated, node)
}

// ListChildren lists a container's direct children
// GET /api/v1/nodes/:id/children
func (h *NodeHandler) ListChildren(c echo.Context) error {
	ctx := c.Request().Context()
	nodeID := c.Param("id")
	caller := middleware.GetCaller(c)

	if err := h.requireRead(c, nodeID, caller); err != nil {
		return err
	}

	children, err := h.tree.List(ctx, nodeID)
	if err != nil {
		h.components.Logger.Error("failed to list children", "node_id", nodeID, "error", err)
		return httpError(err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"node_id":  nodeID,
		"children": children,
	})
}

// DeleteNode deletes a node, cascading through containers
// DELETE /api/v1/nodes/:id
func (h *NodeHandler) DeleteNode(c echo.Context) error {
	ctx := c.Request().Context()
	nodeID := c.Param("id")
	caller := middleware.GetCaller(c)

	if err := h.requireWrite(c, nodeID, caller); err != nil {
		return err
	}

	item, err := h.tree.GetItem(ctx, nodeID)
	if err != nil {
		return httpError(err)
	}

	if err := item.Delete(ctx); err != nil {
		h.components.Logger.Error("failed to delete node", "node_id", nodeID, "error", err)
		return httpError(err)
	}

	// Soft-deleted blobs are now reaper work; no need to wait an hour.
	h.reaper.Kick()

	return c.NoContent(http.StatusNoContent)
}

// RenameNode changes a node's name
// POST /api/v1/nodes/:id/rename?name=...
func (h *NodeHandler) RenameNode(c echo.Context) error {
	ctx := c.Request().Context()
	nodeID := c.Param("id")
	caller := middleware.GetCaller(c)

	if err := h.requireWrite(c, nodeID, caller); err != nil {
		return err
	}

	name := c.QueryParam("name")
	if name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name is required")
	}

	if err := h.tree.Rename(ctx, nodeID, name); err != nil {
		return httpError(err)
	}

	return c.NoContent(http.StatusNoContent)
}

// MoveNode reparents a node
// POST /api/v1/nodes/:id/move?parent=...
func (h *NodeHandler) MoveNode(c echo.Context) error {
	ctx := c.Request().Context()
	nodeID := c.Param("id")
	caller := middleware.GetCaller(c)

	if err := h.requireWrite(c, nodeID, caller); err != nil {
		return err
	}

	newParent := c.QueryParam("parent")
	if newParent == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "parent is required")
	}

	if err := h.requireWrite(c, newParent, caller); err != nil {
		return err
	}

	if err := h.tree.Move(ctx, nodeID, newParent); err != nil {
		return httpError(err)
	}

	return c.NoContent(http.StatusNoContent)
}

func (h *NodeHandler) requireRead(c echo.Context, nodeID, caller string) error {
	ok, err := h.access.CanRead(c.Request().Context(), nodeID, caller)
	if err != nil {
		return httpError(err)
	}
	if !ok {
		return httpError(service.ErrForbidden)
	}
	return nil
}

func (h *NodeHandler) requireWrite(c echo.Context, nodeID, caller string) error {
	ok, err := h.access.CanWrite(c.Request().Context(), nodeID, caller)
	if err != nil {
		return httpError(err)
	}
	if !ok {
		return httpError(service.ErrForbidden)
	}
	return nil
}
