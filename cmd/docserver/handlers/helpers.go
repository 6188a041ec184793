package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/docvault/docvault/cmd/docserver/service"
)

// httpError translates the service error taxonomy into HTTP errors
func httpError(err error) error {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	case errors.Is(err, service.ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, "forbidden")
	case errors.Is(err, service.ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrNoContent):
		return echo.NewHTTPError(http.StatusBadRequest, "node has no raw content")
	case errors.Is(err, service.ErrUpstream):
		return echo.NewHTTPError(http.StatusBadGateway, "upstream conversion failed")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}
