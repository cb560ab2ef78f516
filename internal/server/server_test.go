package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goalgrid/goalgrid-gateway/internal/authapi"
	"github.com/goalgrid/goalgrid-gateway/internal/config"
	"github.com/goalgrid/goalgrid-gateway/internal/credentials"
	"github.com/goalgrid/goalgrid-gateway/internal/gateway"
	"github.com/goalgrid/goalgrid-gateway/internal/gwerrors"
	"github.com/goalgrid/goalgrid-gateway/internal/sessions"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend is the goal tracking API with its auth endpoints
type fakeBackend struct {
	*httptest.Server
	lock          sync.Mutex
	validAccess   string
	refreshFails  bool
	logoutAuth    []string
	goalsRequests []*http.Request
}

func newFakeBackend(t *testing.T) *fakeBackend {
	backend := &fakeBackend{validAccess: "access-1"}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var payload loginPayload
		_ = json.NewDecoder(r.Body).Decode(&payload)
		if payload.Password != "secret" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "invalid credentials"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"accessToken": "access-1", "refreshToken": "refresh-1"})
	})
	mux.HandleFunc("/api/auth/register", func(w http.ResponseWriter, r *http.Request) {
		var payload authapi.RegisterRequest
		_ = json.NewDecoder(r.Body).Decode(&payload)
		if payload.Username == "taken" {
			writeJSON(w, http.StatusConflict, map[string]string{"message": "username already exists"})
			return
		}
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("/api/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		backend.lock.Lock()
		fails := backend.refreshFails
		backend.lock.Unlock()
		if fails || r.Header.Get("Authorization") != "Bearer refresh-1" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "invalid token"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"accessToken": "access-2", "refreshToken": "refresh-2"})
	})
	mux.HandleFunc("/api/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		backend.lock.Lock()
		backend.logoutAuth = append(backend.logoutAuth, r.Header.Get("Authorization"))
		backend.lock.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/api/goals", func(w http.ResponseWriter, r *http.Request) {
		backend.lock.Lock()
		backend.goalsRequests = append(backend.goalsRequests, r.Clone(context.Background()))
		valid := backend.validAccess
		backend.lock.Unlock()
		if r.Header.Get("Authorization") != "Bearer "+valid {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "unauthorized"})
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "backend", Value: "1"})
		w.Header().Set("X-Goals-Count", "2")
		writeJSON(w, http.StatusOK, []map[string]string{{"title": "run"}, {"title": "read"}})
	})
	backend.Server = httptest.NewServer(mux)
	t.Cleanup(backend.Close)
	return backend
}

func (b *fakeBackend) rotateAccess(valid string) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.validAccess = valid
}

func (b *fakeBackend) failRefresh() {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.refreshFails = true
}

func (b *fakeBackend) lastGoalsRequest() *http.Request {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.goalsRequests[len(b.goalsRequests)-1]
}

func mustParse(t *testing.T, raw string) *url.URL {
	parsed, err := url.Parse(raw)
	require.NoError(t, err)
	return parsed
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type testServer struct {
	echo     *echo.Echo
	server   *Server
	backend  *fakeBackend
	store    *credentials.MemoryStore
	sessions *sessions.InMemorySessionRepository
}

func newTestServer(t *testing.T) testServer {
	backend := newFakeBackend(t)
	apiURL := mustParse(t, backend.URL)
	auth, err := authapi.NewClient(authapi.WithBaseURL(apiURL))
	require.NoError(t, err)
	store := credentials.NewMemoryStore()
	sessionRepo := sessions.NewInMemorySessionRepository()
	sessionStore, err := sessions.NewSessionStore(
		sessions.WithSessionRepository(sessionRepo),
		sessions.WithCredentialRemover(store),
		sessions.WithConfig(config.SessionConfig{IdleSessionTTLSeconds: 3600}),
	)
	require.NoError(t, err)
	gw, err := gateway.NewGateway(
		gateway.WithCredentialStore(store),
		gateway.WithRefreshEndpoint(auth),
		gateway.WithCookieMirror(credentials.ContextMirror{FallbackTTL: time.Hour}),
		gateway.WithSessionTerminator(sessionStore),
	)
	require.NoError(t, err)
	server, err := NewServer(
		WithAPIURL(apiURL),
		WithGateway(gw),
		WithAuthClient(auth),
		WithSessionStore(sessionStore),
	)
	require.NoError(t, err)
	e := echo.New()
	e.Pre(middleware.RequestID())
	server.RegisterHandlers(e)
	return testServer{echo: e, server: server, backend: backend, store: store, sessions: sessionRepo}
}

func (ts testServer) do(method, path, body string, header http.Header, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for key, values := range header {
		req.Header[key] = values
	}
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	ts.echo.ServeHTTP(rec, req)
	return rec
}

func (ts testServer) login(t *testing.T) *http.Cookie {
	rec := ts.do(http.MethodPost, "/auth/login", `{"username":"ada","password":"secret"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	session := findCookie(rec, config.SessionCookieName)
	require.NotNil(t, session)
	return session
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	var found *http.Cookie
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == name {
			found = cookie
		}
	}
	return found
}

func TestNewServerValidation(t *testing.T) {
	_, err := NewServer()
	assert.ErrorContains(t, err, "API URL")
}

func TestLogin(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/auth/login", `{"username":"ada","password":"secret"}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"username":"ada"}`, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Cache-Control"), "no-store")
	session := findCookie(rec, config.SessionCookieName)
	require.NotNil(t, session)
	assert.True(t, session.HttpOnly)
	token := findCookie(rec, config.TokenCookieName)
	require.NotNil(t, token)
	assert.Equal(t, "access-1", token.Value)
	assert.Equal(t, "/", token.Path)
	assert.False(t, token.Secure)
	pair, err := ts.store.GetCredentials(context.Background(), session.Value)
	require.NoError(t, err)
	assert.Equal(t, "refresh-1", pair.RefreshToken)
}

func TestLoginRejected(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/auth/login", `{"username":"ada","password":"wrong"}`, nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"message":"invalid credentials"}`, rec.Body.String())
	assert.Nil(t, findCookie(rec, config.SessionCookieName))

	rec = ts.do(http.MethodPost, "/auth/login", `{"username":"ada"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginReplacesSession(t *testing.T) {
	ts := newTestServer(t)
	first := ts.login(t)

	rec := ts.do(http.MethodPost, "/auth/login", `{"username":"ada","password":"secret"}`, nil, first)

	require.Equal(t, http.StatusOK, rec.Code)
	second := findCookie(rec, config.SessionCookieName)
	require.NotNil(t, second)
	assert.NotEqual(t, first.Value, second.Value)
	_, err := ts.store.GetCredentials(context.Background(), first.Value)
	assert.ErrorIs(t, err, gwerrors.ErrMissingCredentials)
	_, err = ts.sessions.GetSession(context.Background(), first.Value)
	assert.ErrorIs(t, err, gwerrors.ErrSessionNotFound)
}

func TestRegister(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/auth/register", `{"username":"ada","password":"secret","firstName":"Ada","lastName":"Lovelace"}`, nil)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotNil(t, findCookie(rec, config.SessionCookieName))
	assert.Equal(t, "access-1", findCookie(rec, config.TokenCookieName).Value)
}

func TestRegisterErrors(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/auth/register", `{"username":"ada"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "firstName")

	rec = ts.do(http.MethodPost, "/auth/register", `{"username":"taken","password":"secret","firstName":"Ada","lastName":"Lovelace"}`, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"message":"username already exists"}`, rec.Body.String())
}

func TestProxyAPI(t *testing.T) {
	ts := newTestServer(t)
	session := ts.login(t)
	header := http.Header{"Authorization": {"Bearer from-browser"}}

	rec := ts.do(http.MethodGet, "/api/goals?sort=title", "", header, session)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "run")
	assert.Equal(t, "2", rec.Header().Get("X-Goals-Count"))
	assert.Empty(t, rec.Header().Values("Set-Cookie"))
	forwarded := ts.backend.lastGoalsRequest()
	assert.Equal(t, "Bearer access-1", forwarded.Header.Get("Authorization"))
	assert.Empty(t, forwarded.Header.Get("Cookie"))
	assert.Equal(t, "sort=title", forwarded.URL.RawQuery)
	assert.Equal(t, rec.Header().Get(echo.HeaderXRequestID), forwarded.Header.Get(echo.HeaderXRequestID))
}

func TestProxyAPIRefreshUpdatesTokenCookie(t *testing.T) {
	ts := newTestServer(t)
	session := ts.login(t)
	ts.backend.rotateAccess("access-2")

	rec := ts.do(http.MethodGet, "/api/goals", "", nil, session)

	require.Equal(t, http.StatusOK, rec.Code)
	token := findCookie(rec, config.TokenCookieName)
	require.NotNil(t, token)
	assert.Equal(t, "access-2", token.Value)
	pair, err := ts.store.GetCredentials(context.Background(), session.Value)
	require.NoError(t, err)
	assert.Equal(t, "refresh-2", pair.RefreshToken)
}

func TestProxyAPITermination(t *testing.T) {
	type testCase struct {
		name   string
		accept string
		check  func(t *testing.T, rec *httptest.ResponseRecorder)
	}
	testCases := []testCase{
		{
			name:   "api call",
			accept: echo.MIMEApplicationJSON,
			check: func(t *testing.T, rec *httptest.ResponseRecorder) {
				assert.Equal(t, http.StatusUnauthorized, rec.Code)
				var body messageResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				assert.Equal(t, "/login", body.Redirect)
				assert.NotEmpty(t, body.Message)
			},
		},
		{
			name:   "browser navigation",
			accept: "text/html,application/xhtml+xml",
			check: func(t *testing.T, rec *httptest.ResponseRecorder) {
				assert.Equal(t, http.StatusFound, rec.Code)
				assert.Equal(t, "/login", rec.Header().Get(echo.HeaderLocation))
			},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(t)
			session := ts.login(t)
			ts.backend.rotateAccess("access-2")
			ts.backend.failRefresh()

			rec := ts.do(http.MethodGet, "/api/goals", "", http.Header{"Accept": {tc.accept}}, session)

			tc.check(t, rec)
			token := findCookie(rec, config.TokenCookieName)
			require.NotNil(t, token)
			assert.Less(t, token.MaxAge, 0)
			sessionCookie := findCookie(rec, config.SessionCookieName)
			require.NotNil(t, sessionCookie)
			assert.Less(t, sessionCookie.MaxAge, 0)
			_, err := ts.sessions.GetSession(context.Background(), session.Value)
			assert.ErrorIs(t, err, gwerrors.ErrSessionNotFound)
			_, err = ts.store.GetCredentials(context.Background(), session.Value)
			assert.ErrorIs(t, err, gwerrors.ErrMissingCredentials)
		})
	}
}

func TestProxyAPIWithoutSession(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/api/goals", "", nil)

	// there is nothing to refresh, the browser is sent to the login page
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), `"redirect":"/login"`)
	assert.Empty(t, ts.backend.lastGoalsRequest().Header.Get("Authorization"))
}

func TestLogout(t *testing.T) {
	ts := newTestServer(t)
	session := ts.login(t)

	rec := ts.do(http.MethodPost, "/auth/logout", "", nil, session)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"Bearer access-1"}, ts.backend.logoutAuth)
	assert.Less(t, findCookie(rec, config.TokenCookieName).MaxAge, 0)
	assert.Less(t, findCookie(rec, config.SessionCookieName).MaxAge, 0)
	_, err := ts.store.GetCredentials(context.Background(), session.Value)
	assert.ErrorIs(t, err, gwerrors.ErrMissingCredentials)
	_, err = ts.sessions.GetSession(context.Background(), session.Value)
	assert.ErrorIs(t, err, gwerrors.ErrSessionNotFound)
}

func TestLogoutWithoutSession(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/auth/logout", "", nil)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, ts.backend.logoutAuth)
	assert.Less(t, findCookie(rec, config.TokenCookieName).MaxAge, 0)
}
