package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/goalgrid/goalgrid-gateway/internal/authapi"
	"github.com/goalgrid/goalgrid-gateway/internal/gwerrors"
	"github.com/goalgrid/goalgrid-gateway/internal/models"
	"github.com/goalgrid/goalgrid-gateway/internal/utils"
	"github.com/labstack/echo/v4"
)

type loginPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type userResponse struct {
	Username string `json:"username"`
}

type messageResponse struct {
	Message  string `json:"message"`
	Redirect string `json:"redirect,omitempty"`
}

func (s *Server) login(c echo.Context) error {
	var payload loginPayload
	if err := c.Bind(&payload); err != nil {
		return c.JSON(http.StatusBadRequest, messageResponse{Message: "malformed login request"})
	}
	if payload.Username == "" || payload.Password == "" {
		return c.JSON(http.StatusBadRequest, messageResponse{Message: "username and password are required"})
	}
	err := s.startSession(c, payload.Username, payload.Password)
	if err != nil {
		return s.authError(c, "login", err)
	}
	return c.JSON(http.StatusOK, userResponse{Username: payload.Username})
}

func (s *Server) register(c echo.Context) error {
	var payload authapi.RegisterRequest
	if err := c.Bind(&payload); err != nil {
		return c.JSON(http.StatusBadRequest, messageResponse{Message: "malformed registration request"})
	}
	if err := payload.Validate(); err != nil {
		return c.JSON(http.StatusBadRequest, messageResponse{Message: err.Error()})
	}
	err := s.auth.Register(c.Request().Context(), payload)
	if err != nil {
		return s.authError(c, "register", err)
	}
	err = s.startSession(c, payload.Username, payload.Password)
	if err != nil {
		return s.authError(c, "login after registration", err)
	}
	return c.JSON(http.StatusCreated, userResponse{Username: payload.Username})
}

// logout invalidates the credentials on the backend on a best effort basis,
// the local session always ends
func (s *Server) logout(c echo.Context) error {
	ctx := c.Request().Context()
	_, sessionErr := s.sessions.Get(c)
	if sessionErr == nil {
		err := s.auth.Logout(ctx, s.gateway)
		if err != nil && !errors.Is(err, gwerrors.ErrSessionTerminated) {
			slog.Info("AUTH", "message", "backend logout failed", "error", err, "requestID", utils.GetRequestID(c))
		}
		err = s.gateway.ClearCredentials(ctx)
		if err != nil {
			slog.Error("AUTH", "message", "cannot clear the credentials", "error", err, "requestID", utils.GetRequestID(c))
		}
	}
	err := s.sessions.Delete(c)
	if err != nil {
		slog.Error("AUTH", "message", "cannot delete the session", "error", err, "requestID", utils.GetRequestID(c))
	}
	expireTokenCookie(c)
	return c.NoContent(http.StatusNoContent)
}

// startSession logs in at the backend, replaces the current session with a new one and
// stores the credential pair under the new session ID
func (s *Server) startSession(c echo.Context, username, password string) error {
	ctx := c.Request().Context()
	pair, err := s.auth.Login(ctx, username, password)
	if err != nil {
		return err
	}
	if current, err := s.sessions.Get(c); err == nil {
		s.removeSession(ctx, current)
	}
	_, err = s.sessions.Create(c, username)
	if err != nil {
		return err
	}
	return s.gateway.SetCredentials(c.Request().Context(), pair)
}

func (s *Server) removeSession(ctx context.Context, session *models.Session) {
	err := s.sessions.Remove(ctx, session.ID)
	if err != nil {
		slog.Error("AUTH", "message", "cannot remove the replaced session", "error", err)
	}
}

// authError passes backend rejections through with their status and message
func (s *Server) authError(c echo.Context, action string, err error) error {
	var httpErr *gwerrors.HTTPError
	if errors.As(err, &httpErr) {
		message := httpErr.Message
		if message == "" {
			message = http.StatusText(httpErr.Status)
		}
		return c.JSON(httpErr.Status, messageResponse{Message: message})
	}
	slog.Error("AUTH", "message", action+" failed", "error", err, "requestID", utils.GetRequestID(c))
	return c.JSON(http.StatusBadGateway, messageResponse{Message: "the authentication service is unavailable"})
}
