// Package utils holds small helpers shared by the echo handlers and middlewares.
package utils

import (
	"strings"

	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/labstack/echo/v4"
)

// GetRequestID returns the ID assigned by the request ID middleware
func GetRequestID(c echo.Context) string {
	return c.Response().Header().Get(echo.HeaderXRequestID)
}

// GetTraceID returns the sentry trace of the request, empty when tracing is disabled
func GetTraceID(c echo.Context) string {
	if span := sentryecho.GetSpanFromContext(c); span != nil {
		return span.TraceID.String()
	}
	return ""
}

// WantsHTML is true for browser navigations, which get redirects instead of JSON errors
func WantsHTML(c echo.Context) bool {
	return strings.Contains(c.Request().Header.Get(echo.HeaderAccept), echo.MIMETextHTML)
}
