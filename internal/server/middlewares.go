package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/goalgrid/goalgrid-gateway/internal/config"
	"github.com/goalgrid/goalgrid-gateway/internal/credentials"
	"github.com/labstack/echo/v4"
)

// Pages that can be visited without logging in
var publicRoutes = []string{"/login", "/register", "/", "/health", "/version"}

// Paths never checked by the route guard, matched by prefix
var unguardedPrefixes = []string{"/auth/", "/_next/static", "/_next/image", "/favicon.ico"}

// NoCaching sets headers in responses that prevent caching by the browser.
func NoCaching(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		var noCacheHeaders = map[string]string{
			"Expires":         time.Unix(0, 0).Format(time.RFC1123),
			"Cache-Control":   "no-cache, no-store, must-revalidate, max-age=0",
			"X-Accel-Expires": "0",
		}
		for k, v := range noCacheHeaders {
			c.Response().Header().Set(k, v)
		}
		return next(c)
	}
}

// RouteGuard redirects to the login page when a page is requested without the token cookie
func RouteGuard() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path
			if isPublic(path) {
				return next(c)
			}
			if cookie, err := c.Cookie(config.TokenCookieName); err == nil && cookie.Value != "" {
				return next(c)
			}
			return c.Redirect(http.StatusFound, loginPath)
		}
	}
}

func isPublic(path string) bool {
	for _, route := range publicRoutes {
		if path == route {
			return true
		}
	}
	if isAPIPath(path) {
		return true
	}
	for _, prefix := range unguardedPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func isAPIPath(path string) bool {
	return path == "/api" || strings.HasPrefix(path, "/api/")
}

const cookieSinkCtxKey string = "goalgrid_cookie_sink"

// cookieSink collects the token cookie updates made by the gateway while handling the
// request, the latest one is written on the response right before the headers are sent
func (s *Server) cookieSink() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sink := &credentials.CookieSink{Secure: c.Scheme() == "https"}
			ctx := credentials.WithCookieSink(c.Request().Context(), sink)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set(cookieSinkCtxKey, sink)
			c.Response().Before(func() {
				cookies := sink.Cookies()
				if len(cookies) > 0 {
					c.SetCookie(cookies[len(cookies)-1])
				}
			})
			return next(c)
		}
	}
}

func expireTokenCookie(c echo.Context) {
	if sink, ok := c.Get(cookieSinkCtxKey).(*credentials.CookieSink); ok {
		sink.ExpireToken()
		return
	}
	c.SetCookie(credentials.ExpiredTokenCookie(c.Scheme() == "https"))
}
