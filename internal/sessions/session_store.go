// Package sessions keeps the browser sessions of the gateway server. The session ID
// is the key under which the credential pair of the browser is stored.
package sessions

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/goalgrid/goalgrid-gateway/internal/config"
	"github.com/goalgrid/goalgrid-gateway/internal/gateway"
	"github.com/goalgrid/goalgrid-gateway/internal/gwerrors"
	"github.com/goalgrid/goalgrid-gateway/internal/models"
	"github.com/goalgrid/goalgrid-gateway/internal/utils"
	"github.com/labstack/echo/v4"
)

type SessionStore struct {
	sessionRepo    models.SessionRepository
	credentials    models.CredentialRemover
	config         config.SessionConfig
	cookieTemplate func() http.Cookie
}

func (sessions *SessionStore) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			session, loadErr := sessions.Get(c)
			if loadErr != nil && !errors.Is(loadErr, gwerrors.ErrSessionNotFound) && !errors.Is(loadErr, gwerrors.ErrSessionExpired) {
				slog.Info(
					"SESSION MIDDLEWARE",
					"message",
					"could not load session",
					"error",
					loadErr,
					"requestID",
					utils.GetRequestID(c),
				)
			}
			if loadErr == nil {
				sessions.attach(c, session)
			}
			err := next(c)
			saveErr := sessions.Save(c)
			if saveErr != nil && !errors.Is(saveErr, gwerrors.ErrSessionNotFound) {
				slog.Info(
					"SESSION MIDDLEWARE",
					"message",
					"could not save session",
					"error",
					saveErr,
					"requestID",
					utils.GetRequestID(c),
				)
			}
			return err
		}
	}
}

// attach puts the session in the echo context and its ID in the request context
func (sessions *SessionStore) attach(c echo.Context, session *models.Session) {
	c.Set(config.SessionCtxKey, session)
	ctx := gateway.WithSessionKey(c.Request().Context(), session.ID)
	c.SetRequest(c.Request().WithContext(ctx))
}

func (sessions *SessionStore) getFromContext(c echo.Context) (*models.Session, error) {
	sessionRaw := c.Get(config.SessionCtxKey)
	if sessionRaw == nil {
		return nil, gwerrors.ErrSessionNotFound
	}
	session, ok := sessionRaw.(*models.Session)
	if !ok {
		return nil, gwerrors.ErrSessionParse
	}
	if session == nil || session.ID == "" {
		return nil, gwerrors.ErrSessionNotFound
	}
	if session.Expired() {
		return nil, gwerrors.ErrSessionExpired
	}
	return session, nil
}

// Get returns the session of the request, loading it from the repository
// based on the session cookie if it is not in the context yet.
func (sessions *SessionStore) Get(c echo.Context) (*models.Session, error) {
	session, err := sessions.getFromContext(c)
	if err == nil || errors.Is(err, gwerrors.ErrSessionParse) {
		return session, err
	}
	cookie, err := c.Cookie(config.SessionCookieName)
	if err != nil {
		if err == http.ErrNoCookie {
			return nil, gwerrors.ErrSessionNotFound
		}
		return nil, err
	}
	if cookie.Value == "" {
		return nil, gwerrors.ErrSessionNotFound
	}
	stored, err := sessions.sessionRepo.GetSession(c.Request().Context(), cookie.Value)
	if err != nil {
		return nil, err
	}
	if stored.Expired() {
		return nil, gwerrors.ErrSessionExpired
	}
	sessions.touch(&stored)
	return &stored, nil
}

// Create starts a new session for the user, replacing any current one
func (sessions *SessionStore) Create(c echo.Context, username string) (*models.Session, error) {
	session, err := models.NewSession(models.WithTTL(sessions.config.IdleTTL()), models.WithUsername(username))
	if err != nil {
		return nil, err
	}
	err = sessions.sessionRepo.SetSession(c.Request().Context(), session)
	if err != nil {
		return nil, err
	}
	sessions.attach(c, &session)
	cookie := sessions.Cookie(session)
	c.SetCookie(&cookie)
	slog.Info("SESSION MIDDLEWARE", "message", "created session", "username", username, "requestID", utils.GetRequestID(c))
	return &session, nil
}

// Save persists the session of the request with its extended expiry
func (sessions *SessionStore) Save(c echo.Context) error {
	session, err := sessions.getFromContext(c)
	if err != nil {
		return err
	}
	return sessions.sessionRepo.SetSession(c.Request().Context(), *session)
}

// Delete removes the session and its credentials and expires the session cookie
func (sessions *SessionStore) Delete(c echo.Context) error {
	newCookie := sessions.cookieTemplate()
	newCookie.MaxAge = -1
	c.SetCookie(&newCookie)

	session, err := sessions.Get(c)
	c.Set(config.SessionCtxKey, &models.Session{})
	if err != nil {
		if errors.Is(err, gwerrors.ErrSessionNotFound) || errors.Is(err, gwerrors.ErrSessionExpired) {
			return nil
		}
		return err
	}
	return sessions.Remove(c.Request().Context(), session.ID)
}

func (sessions *SessionStore) Cookie(session models.Session) http.Cookie {
	cookie := sessions.cookieTemplate()
	cookie.Value = session.ID
	if !session.ExpiresAt.IsZero() {
		cookie.Expires = session.ExpiresAt
	}
	return cookie
}

// touch extends the idle expiry of the session, bounded by the maximum session lifetime
func (sessions *SessionStore) touch(session *models.Session) {
	expiresAt := time.Now().UTC().Add(sessions.config.IdleTTL())
	if maxTTL := sessions.config.MaxTTL(); maxTTL > 0 {
		if limit := session.CreatedAt.Add(maxTTL); expiresAt.After(limit) {
			expiresAt = limit
		}
	}
	session.ExpiresAt = expiresAt
}

type SessionStoreOption func(*SessionStore) error

func WithSessionRepository(repo models.SessionRepository) SessionStoreOption {
	return func(ss *SessionStore) error {
		ss.sessionRepo = repo
		return nil
	}
}

func WithCredentialRemover(credentials models.CredentialRemover) SessionStoreOption {
	return func(ss *SessionStore) error {
		ss.credentials = credentials
		return nil
	}
}

func WithConfig(c config.SessionConfig) SessionStoreOption {
	return func(ss *SessionStore) error {
		ss.config = c
		return nil
	}
}

func WithCookieTemplate(f func() http.Cookie) SessionStoreOption {
	return func(ss *SessionStore) error {
		ss.cookieTemplate = f
		return nil
	}
}

func NewSessionStore(options ...SessionStoreOption) (*SessionStore, error) {
	sessions := SessionStore{
		cookieTemplate: func() http.Cookie { return config.SessionCookieTemplate },
	}
	for _, opt := range options {
		err := opt(&sessions)
		if err != nil {
			return nil, err
		}
	}
	if sessions.sessionRepo == nil {
		return nil, fmt.Errorf("session repository is not initialized")
	}
	if sessions.credentials == nil {
		return nil, fmt.Errorf("credential remover is not initialized")
	}
	if err := sessions.config.Validate(); err != nil {
		return nil, err
	}
	return &sessions, nil
}
