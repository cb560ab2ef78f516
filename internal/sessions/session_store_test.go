package sessions

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goalgrid/goalgrid-gateway/internal/config"
	"github.com/goalgrid/goalgrid-gateway/internal/credentials"
	"github.com/goalgrid/goalgrid-gateway/internal/db"
	"github.com/goalgrid/goalgrid-gateway/internal/gateway"
	"github.com/goalgrid/goalgrid-gateway/internal/gwerrors"
	"github.com/goalgrid/goalgrid-gateway/internal/models"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSessionConfig = config.SessionConfig{IdleSessionTTLSeconds: 3600, MaxSessionTTLSeconds: 7200}

type testSetup struct {
	sessions    *SessionStore
	repo        models.SessionRepository
	credentials *credentials.MemoryStore
}

func setupSessionStore(t *testing.T) testSetup {
	adapter, err := db.NewRedisAdapter(db.WithRedisConfig(config.RedisConfig{Type: config.DBTypeRedisMock}))
	require.NoError(t, err)
	creds := credentials.NewMemoryStore()
	sessions, err := NewSessionStore(
		WithSessionRepository(adapter),
		WithCredentialRemover(creds),
		WithConfig(testSessionConfig),
	)
	require.NoError(t, err)
	return testSetup{sessions: sessions, repo: adapter, credentials: creds}
}

func setupEchoContext(cookies ...*http.Cookie) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/boards", nil)
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestNewSessionStoreValidation(t *testing.T) {
	_, err := NewSessionStore()
	assert.ErrorContains(t, err, "session repository")

	_, err = NewSessionStore(WithSessionRepository(NewInMemorySessionRepository()), WithCredentialRemover(credentials.NewMemoryStore()))
	assert.Error(t, err)
}

func TestCreateSetsCookieAndSessionKey(t *testing.T) {
	setup := setupSessionStore(t)
	c, rec := setupEchoContext()

	session, err := setup.sessions.Create(c, "alice")

	require.NoError(t, err)
	assert.Equal(t, "alice", session.Username)
	assert.Equal(t, session.ID, gateway.SessionKey(c.Request().Context()))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, config.SessionCookieName, cookies[0].Name)
	assert.Equal(t, session.ID, cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
	stored, err := setup.repo.GetSession(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", stored.Username)
}

func TestMiddlewareLoadsSessionFromCookie(t *testing.T) {
	setup := setupSessionStore(t)
	session, err := models.NewSession(models.WithTTL(time.Minute), models.WithUsername("alice"))
	require.NoError(t, err)
	require.NoError(t, setup.repo.SetSession(context.Background(), session))
	c, _ := setupEchoContext(&http.Cookie{Name: config.SessionCookieName, Value: session.ID})

	var sessionKey string
	var loaded *models.Session
	handler := setup.sessions.Middleware()(func(c echo.Context) error {
		sessionKey = gateway.SessionKey(c.Request().Context())
		loaded, err = setup.sessions.Get(c)
		return err
	})

	require.NoError(t, handler(c))
	assert.Equal(t, session.ID, sessionKey)
	assert.Equal(t, "alice", loaded.Username)
	// the idle expiry was extended and saved
	stored, err := setup.repo.GetSession(context.Background(), session.ID)
	require.NoError(t, err)
	assert.True(t, stored.ExpiresAt.After(session.ExpiresAt))
}

func TestMiddlewareWithoutSession(t *testing.T) {
	setup := setupSessionStore(t)
	c, _ := setupEchoContext(&http.Cookie{Name: config.SessionCookieName, Value: "unknown"})

	handler := setup.sessions.Middleware()(func(c echo.Context) error {
		assert.Equal(t, "", gateway.SessionKey(c.Request().Context()))
		_, err := setup.sessions.Get(c)
		assert.ErrorIs(t, err, gwerrors.ErrSessionNotFound)
		return nil
	})

	assert.NoError(t, handler(c))
}

func TestTouchIsBoundedByMaxTTL(t *testing.T) {
	setup := setupSessionStore(t)
	session := models.Session{ID: "s", CreatedAt: time.Now().UTC().Add(-7000 * time.Second)}

	setup.sessions.touch(&session)

	assert.WithinDuration(t, session.CreatedAt.Add(7200*time.Second), session.ExpiresAt, time.Second)
}

func TestDeleteRemovesSessionAndCredentials(t *testing.T) {
	setup := setupSessionStore(t)
	c, rec := setupEchoContext()
	session, err := setup.sessions.Create(c, "alice")
	require.NoError(t, err)
	require.NoError(t, setup.credentials.SetCredentials(context.Background(), session.ID, models.CredentialPair{AccessToken: "a"}))

	require.NoError(t, setup.sessions.Delete(c))

	_, err = setup.repo.GetSession(context.Background(), session.ID)
	assert.ErrorIs(t, err, gwerrors.ErrSessionNotFound)
	_, err = setup.credentials.GetCredentials(context.Background(), session.ID)
	assert.ErrorIs(t, err, gwerrors.ErrMissingCredentials)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 2)
	assert.Equal(t, -1, cookies[1].MaxAge)
	_, err = setup.sessions.Get(c)
	assert.ErrorIs(t, err, gwerrors.ErrSessionNotFound)
}

func TestTerminate(t *testing.T) {
	setup := setupSessionStore(t)
	c, _ := setupEchoContext()
	session, err := setup.sessions.Create(c, "alice")
	require.NoError(t, err)

	setup.sessions.Terminate(context.Background(), session.ID, errors.New("refresh failed"))

	_, err = setup.repo.GetSession(context.Background(), session.ID)
	assert.ErrorIs(t, err, gwerrors.ErrSessionNotFound)
}

func TestInMemorySessionRepository(t *testing.T) {
	repo := NewInMemorySessionRepository()
	ctx := context.Background()
	expired := models.Session{ID: "old", ExpiresAt: time.Now().Add(-time.Minute)}
	require.NoError(t, repo.SetSession(ctx, expired))
	require.NoError(t, repo.SetSession(ctx, models.Session{ID: "current"}))

	_, err := repo.GetSession(ctx, "old")
	assert.ErrorIs(t, err, gwerrors.ErrSessionExpired)
	_, err = repo.GetSession(ctx, "current")
	assert.NoError(t, err)
	require.NoError(t, repo.RemoveSession(ctx, "current"))
	_, err = repo.GetSession(ctx, "current")
	assert.ErrorIs(t, err, gwerrors.ErrSessionNotFound)
}
