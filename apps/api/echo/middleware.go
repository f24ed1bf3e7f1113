package echoapi

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/studyplanner/core"
)

var (
	errNoAPIKey = &core.BackendError{
		Status: http.StatusUnauthorized, Code: "no_api_key", Message: "No API key found in request",
	}
	errInvalidAPIKey = &core.BackendError{
		Status: http.StatusUnauthorized, Code: "invalid_api_key", Message: "Invalid API key",
	}
)

// apiKeyMiddleware rejects requests that do not carry anonKey in the apikey header (or query
// parameter). An empty anonKey disables the check.
func apiKeyMiddleware(anonKey string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if anonKey == "" {
				return next(ctx)
			}
			key := ctx.Request().Header.Get("apikey")
			if key == "" {
				key = ctx.QueryParam("apikey")
			}
			if key == "" {
				return errNoAPIKey
			}
			if subtle.ConstantTimeCompare([]byte(key), []byte(anonKey)) != 1 {
				return errInvalidAPIKey
			}
			return next(ctx)
		}
	}
}
