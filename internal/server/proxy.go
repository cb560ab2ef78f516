package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/goalgrid/goalgrid-gateway/internal/gwerrors"
	"github.com/goalgrid/goalgrid-gateway/internal/utils"
	"github.com/labstack/echo/v4"
)

// Headers that apply to a single connection and are never forwarded
var hopByHopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// The browser credentials stay in the server, the gateway sets its own
var strippedRequestHeaders = []string{"Cookie", "Authorization", "Host"}

// proxyAPI forwards an /api call to the backend through the gateway
func (s *Server) proxyAPI(c echo.Context) error {
	in := c.Request()
	target := s.apiURL.JoinPath(in.URL.Path)
	target.RawQuery = in.URL.RawQuery
	out, err := http.NewRequestWithContext(in.Context(), in.Method, target.String(), in.Body)
	if err != nil {
		return err
	}
	out.ContentLength = in.ContentLength
	out.Header = in.Header.Clone()
	removeHopByHop(out.Header)
	removeHeaders(out.Header, strippedRequestHeaders...)
	if requestID := utils.GetRequestID(c); requestID != "" {
		out.Header.Set(echo.HeaderXRequestID, requestID)
	}
	out.Header.Set(echo.HeaderXForwardedFor, c.RealIP())

	res, err := s.gateway.Do(out)
	if err != nil {
		return s.proxyError(c, err)
	}
	defer res.Body.Close()

	header := c.Response().Header()
	for key, values := range res.Header {
		header[key] = append([]string(nil), values...)
	}
	removeHopByHop(header)
	// the browser cookies are owned by this server
	header.Del("Set-Cookie")
	c.Response().WriteHeader(res.StatusCode)
	_, err = io.Copy(c.Response(), res.Body)
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Info("API PROXY", "message", "copying the response body failed", "error", err, "requestID", utils.GetRequestID(c))
	}
	return nil
}

func (s *Server) proxyError(c echo.Context, err error) error {
	if errors.Is(err, gwerrors.ErrSessionTerminated) {
		return s.terminated(c, err)
	}
	if errors.Is(err, context.Canceled) {
		slog.Debug("API PROXY", "message", "the browser went away", "requestID", utils.GetRequestID(c))
		return nil
	}
	slog.Error("API PROXY", "message", "request to the backend failed", "error", err, "requestID", utils.GetRequestID(c))
	return c.JSON(http.StatusBadGateway, messageResponse{Message: "the backend is unavailable"})
}

// terminated ends the browser session after the gateway could not recover the credentials
func (s *Server) terminated(c echo.Context, err error) error {
	slog.Info("API PROXY", "message", "session terminated", "error", err, "requestID", utils.GetRequestID(c))
	deleteErr := s.sessions.Delete(c)
	if deleteErr != nil {
		slog.Error("API PROXY", "message", "cannot delete the terminated session", "error", deleteErr, "requestID", utils.GetRequestID(c))
	}
	expireTokenCookie(c)
	if utils.WantsHTML(c) {
		return c.Redirect(http.StatusFound, loginPath)
	}
	return c.JSON(http.StatusUnauthorized, messageResponse{Message: "your session has ended, please log in again", Redirect: loginPath})
}

// removeHopByHop drops the connection headers, including the ones listed in Connection
func removeHopByHop(header http.Header) {
	for _, key := range strings.Split(header.Get("Connection"), ",") {
		if key = strings.TrimSpace(key); key != "" {
			header.Del(key)
		}
	}
	removeHeaders(header, hopByHopHeaders...)
}

func removeHeaders(header http.Header, keys ...string) {
	for _, key := range keys {
		header.Del(key)
	}
}
