package middleware

import (
	"github.com/labstack/echo/v4"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// CallerKey is the context key for the authenticated caller identity
	CallerKey ContextKey = "caller"
)

// ExtractCaller extracts the X-User-ID header set by the upstream
// request layer and stores it in the request context. Rights evaluation
// itself happens behind the AccessChecker predicate; this middleware
// only carries identity.
func ExtractCaller() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			caller := c.Request().Header.Get("X-User-ID")
			if caller != "" {
				c.Set(string(CallerKey), caller)
			}
			return next(c)
		}
	}
}

// GetCaller returns the caller identity from the echo context, empty
// when the request was anonymous
func GetCaller(c echo.Context) string {
	if v, ok := c.Get(string(CallerKey)).(string); ok {
		return v
	}
	return ""
}
