package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/docvault/docvault/cmd/docserver/middleware"
	"github.com/docvault/docvault/cmd/docserver/models"
	"github.com/docvault/docvault/cmd/docserver/service"
	"github.com/docvault/docvault/common/bootstrap"
)

// RightHandler manages the access-control entries on nodes
type RightHandler struct {
	components *bootstrap.Components
	rights     *service.RightService
	access     service.AccessChecker
}

// NewRightHandler creates a new right handler
func NewRightHandler(components *bootstrap.Components, rights *service.RightService, access service.AccessChecker) *RightHandler {
	return &RightHandler{
		components: components,
		rights:     rights,
		access:     access,
	}
}

// GrantRight upserts a right entry on a node
// POST /api/v1/nodes/:id/rights
func (h *RightHandler) GrantRight(c echo.Context) error {
	ctx := c.Request().Context()
	nodeID := c.Param("id")
	caller := middleware.GetCaller(c)

	writable, err := h.access.CanWrite(ctx, nodeID, caller)
	if err != nil {
		return httpError(err)
	}
	if !writable {
		return httpError(service.ErrForbidden)
	}

	var right models.Right
	if err := c.Bind(&right); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid right payload")
	}
	right.NodeID = nodeID

	if err := h.rights.Grant(ctx, &right); err != nil {
		h.components.Logger.Error("failed to grant right", "node_id", nodeID, "error", err)
		return httpError(err)
	}

	return c.JSON(http.StatusCreated, right)
}

// ListRights lists the rights attached to a node
// GET /api/v1/nodes/:id/rights
func (h *RightHandler) ListRights(c echo.Context) error {
	ctx := c.Request().Context()
	nodeID := c.Param("id")
	caller := middleware.GetCaller(c)

	readable, err := h.access.CanRead(ctx, nodeID, caller)
	if err != nil {
		return httpError(err)
	}
	if !readable {
		return httpError(service.ErrForbidden)
	}

	rights, err := h.rights.ListForNode(ctx, nodeID)
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, rights)
}
