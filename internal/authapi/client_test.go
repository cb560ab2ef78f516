package authapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/goalgrid/goalgrid-gateway/internal/gwerrors"
	"github.com/goalgrid/goalgrid-gateway/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	baseURL, err := url.Parse(server.URL)
	require.NoError(t, err)
	client, err := NewClient(WithBaseURL(baseURL), WithHTTPClient(server.Client()))
	require.NoError(t, err)
	return client
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	_, err := NewClient()
	assert.Error(t, err)
}

func TestLogin(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/auth/login", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body := map[string]string{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]string{"username": "alice", "password": "secret"}, body)
		_, _ = w.Write([]byte(`{"accessToken":"a1","refreshToken":"r1"}`))
	})

	pair, err := client.Login(context.Background(), "alice", "secret")

	require.NoError(t, err)
	assert.Equal(t, models.CredentialPair{AccessToken: "a1", RefreshToken: "r1"}, pair)
}

func TestLoginLegacyTokenField(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"token":"legacy"}`))
	})

	pair, err := client.Login(context.Background(), "alice", "secret")

	require.NoError(t, err)
	assert.Equal(t, "legacy", pair.AccessToken)
}

func TestLoginErrors(t *testing.T) {
	type testCase struct {
		name       string
		status     int
		body       string
		expMessage string
	}
	testCases := []testCase{
		{name: "json message", status: 401, body: `{"message":"Bad credentials"}`, expMessage: "Bad credentials"},
		{name: "json error", status: 400, body: `{"error":"Username taken"}`, expMessage: "Username taken"},
		{name: "plain text", status: 500, body: "boom\n", expMessage: "boom"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})

			_, err := client.Login(context.Background(), "alice", "secret")

			var httpErr *gwerrors.HTTPError
			require.True(t, errors.As(err, &httpErr))
			assert.Equal(t, tc.status, httpErr.Status)
			assert.Equal(t, tc.expMessage, httpErr.Message)
		})
	}
}

func TestLoginRequiresCredentials(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	_, err := client.Login(context.Background(), "alice", "")

	assert.Error(t, err)
}

func TestRegister(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/register", r.URL.Path)
		body := RegisterRequest{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Alice", body.FirstName)
		w.WriteHeader(http.StatusCreated)
	})

	err := client.Register(context.Background(), RegisterRequest{
		Username: "alice", Password: "secret", FirstName: "Alice", LastName: "Liddell",
	})

	assert.NoError(t, err)
	err = client.Register(context.Background(), RegisterRequest{Username: "alice"})
	assert.ErrorContains(t, err, "password, firstName, lastName")
}

func TestRefresh(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/refresh", r.URL.Path)
		assert.Equal(t, "Bearer r1", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"accessToken":"a2","refreshToken":"r2"}`))
	})

	pair, err := client.Refresh(context.Background(), "r1")

	require.NoError(t, err)
	assert.Equal(t, models.CredentialPair{AccessToken: "a2", RefreshToken: "r2"}, pair)
}

func TestRefreshKeepsRefreshTokenWhenNotRotated(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"accessToken":"a2"}`))
	})

	pair, err := client.Refresh(context.Background(), "Bearer r1")

	require.NoError(t, err)
	assert.Equal(t, "r1", pair.RefreshToken)
}

func TestRefreshRejected(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	_, err := client.Refresh(context.Background(), "r1")

	var httpErr *gwerrors.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusBadRequest, httpErr.Status)

	_, err = client.Refresh(context.Background(), "")
	assert.ErrorIs(t, err, gwerrors.ErrMissingCredentials)
}

type recordingDoer struct {
	requests []*http.Request
	status   int
}

func (d *recordingDoer) Do(req *http.Request) (*http.Response, error) {
	d.requests = append(d.requests, req)
	rec := httptest.NewRecorder()
	rec.WriteHeader(d.status)
	return rec.Result(), nil
}

func TestLogoutUsesDoer(t *testing.T) {
	baseURL, err := url.Parse("https://api.goalgrid.example")
	require.NoError(t, err)
	client, err := NewClient(WithBaseURL(baseURL))
	require.NoError(t, err)
	doer := &recordingDoer{status: http.StatusNoContent}

	err = client.Logout(context.Background(), doer)

	require.NoError(t, err)
	require.Len(t, doer.requests, 1)
	assert.Equal(t, "https://api.goalgrid.example/api/auth/logout", doer.requests[0].URL.String())

	doer.status = http.StatusInternalServerError
	err = client.Logout(context.Background(), doer)
	assert.Error(t, err)
}
