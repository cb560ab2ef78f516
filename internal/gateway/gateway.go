// Package gateway sends authenticated requests to the backend and coordinates a single
// credential refresh for all requests of a session that are rejected with 401 at the same time.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/goalgrid/goalgrid-gateway/internal/gwerrors"
	"github.com/goalgrid/goalgrid-gateway/internal/models"
	"golang.org/x/sync/singleflight"
)

const (
	headerRequestID     string = "X-Request-ID"
	headerAuthorization string = "Authorization"

	defaultRefreshTimeout = 15 * time.Second
	defaultWaitTimeout    = 30 * time.Second
)

type Gateway struct {
	httpClient     *http.Client
	store          CredentialStore
	refresher      RefreshEndpoint
	mirror         CookieMirror
	terminator     SessionTerminator
	metrics        MetricsRecorder
	idGenerator    models.IDGenerator
	refreshTimeout time.Duration
	waitTimeout    time.Duration

	headersLock    sync.RWMutex
	defaultHeaders http.Header
	// Authorization header value set after a refresh, per session key
	sessionAuth map[string]string

	refreshes singleflight.Group
	// incremented on every termination of a session key
	epochLock sync.Mutex
	epochs    map[string]uint64
}

type GatewayOption func(*Gateway) error

func WithHTTPClient(client *http.Client) GatewayOption {
	return func(g *Gateway) error {
		g.httpClient = client
		return nil
	}
}

func WithCredentialStore(store CredentialStore) GatewayOption {
	return func(g *Gateway) error {
		g.store = store
		return nil
	}
}

func WithRefreshEndpoint(refresher RefreshEndpoint) GatewayOption {
	return func(g *Gateway) error {
		g.refresher = refresher
		return nil
	}
}

func WithCookieMirror(mirror CookieMirror) GatewayOption {
	return func(g *Gateway) error {
		g.mirror = mirror
		return nil
	}
}

func WithSessionTerminator(terminator SessionTerminator) GatewayOption {
	return func(g *Gateway) error {
		g.terminator = terminator
		return nil
	}
}

func WithMetrics(metrics MetricsRecorder) GatewayOption {
	return func(g *Gateway) error {
		g.metrics = metrics
		return nil
	}
}

// WithRefreshTimeout bounds a single call to the refresh endpoint
func WithRefreshTimeout(timeout time.Duration) GatewayOption {
	return func(g *Gateway) error {
		if timeout <= 0 {
			return fmt.Errorf("the refresh timeout has to be positive")
		}
		g.refreshTimeout = timeout
		return nil
	}
}

// WithWaitTimeout bounds how long a request waits for a refresh, 0 waits until the refresh settles
func WithWaitTimeout(timeout time.Duration) GatewayOption {
	return func(g *Gateway) error {
		if timeout < 0 {
			return fmt.Errorf("the wait timeout cannot be negative")
		}
		g.waitTimeout = timeout
		return nil
	}
}

func WithDefaultHeader(key, value string) GatewayOption {
	return func(g *Gateway) error {
		g.defaultHeaders.Set(key, value)
		return nil
	}
}

func WithIDGenerator(generator models.IDGenerator) GatewayOption {
	return func(g *Gateway) error {
		g.idGenerator = generator
		return nil
	}
}

func NewGateway(options ...GatewayOption) (*Gateway, error) {
	g := Gateway{
		httpClient:     http.DefaultClient,
		mirror:         noopMirror{},
		metrics:        noopMetrics{},
		idGenerator:    models.ULIDGenerator{},
		refreshTimeout: defaultRefreshTimeout,
		waitTimeout:    defaultWaitTimeout,
		defaultHeaders: http.Header{},
		sessionAuth:    map[string]string{},
		epochs:         map[string]uint64{},
	}
	for _, opt := range options {
		err := opt(&g)
		if err != nil {
			return nil, err
		}
	}
	if g.store == nil {
		return nil, fmt.Errorf("credential store not initialized")
	}
	if g.refresher == nil {
		return nil, fmt.Errorf("refresh endpoint not initialized")
	}
	if g.terminator == nil {
		return nil, fmt.Errorf("session terminator not initialized")
	}
	return &g, nil
}

// Do sends the request with the stored access token of the session key found in the
// request context. A 401 answer is retried once after the shared refresh succeeds.
// Failures that end the session are returned as *gwerrors.TerminationError.
func (g *Gateway) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	sessionKey := SessionKey(ctx)
	epoch := g.epoch(sessionKey)
	err := makeReplayable(req)
	if err != nil {
		return nil, err
	}
	requestID := req.Header.Get(headerRequestID)
	if requestID == "" {
		requestID, err = g.idGenerator.ID()
		if err != nil {
			return nil, err
		}
	}

	attempt := req.Clone(ctx)
	attempt.Header.Set(headerRequestID, requestID)
	g.Decorate(attempt)
	retried := false
	for {
		res, err := g.httpClient.Do(attempt)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			slog.Info(
				"GATEWAY",
				"message",
				"request did not reach the backend, terminating the session",
				"error",
				err,
				"requestID",
				requestID,
			)
			return nil, g.terminate(ctx, sessionKey, epoch, gwerrors.ErrTransport, err)
		}
		if res.StatusCode != http.StatusUnauthorized || retried {
			unrecoverable, cause := secondarySignal(res, retried)
			if !unrecoverable {
				return res, nil
			}
			drainAndClose(res)
			slog.Info(
				"GATEWAY",
				"message",
				"backend rejected the credentials, terminating the session",
				"status",
				res.StatusCode,
				"requestID",
				requestID,
			)
			return nil, g.terminate(ctx, sessionKey, epoch, gwerrors.ErrForbiddenOrInvalidToken, cause)
		}
		drainAndClose(res)
		pair, refreshed := g.newerCredentials(ctx, sessionKey, attempt.Header.Get(headerAuthorization))
		if !refreshed {
			slog.Debug("GATEWAY", "message", "access token rejected, waiting for a refresh", "requestID", requestID)
			pair, err = g.awaitRefresh(ctx, sessionKey, epoch)
			if err != nil {
				return nil, err
			}
		}
		retried = true
		attempt, err = replay(req)
		if err != nil {
			return nil, err
		}
		attempt.Header.Set(headerRequestID, requestID)
		g.Decorate(attempt)
		attempt.Header.Set(headerAuthorization, models.BearerValue(pair.AccessToken))
		g.metrics.Retry()
	}
}

// Decorate applies the default headers the request does not set itself and the access token
// of the request's session key.
// Decorating the same request twice yields the same headers.
func (g *Gateway) Decorate(req *http.Request) {
	sessionKey := SessionKey(req.Context())
	g.headersLock.RLock()
	for key, values := range g.defaultHeaders {
		if _, set := req.Header[key]; !set {
			req.Header[key] = append([]string(nil), values...)
		}
	}
	auth, found := g.sessionAuth[sessionKey]
	g.headersLock.RUnlock()
	if found {
		req.Header.Set(headerAuthorization, auth)
	}
	pair, err := g.store.GetCredentials(req.Context(), sessionKey)
	if errors.Is(err, gwerrors.ErrMissingCredentials) {
		if found {
			req.Header.Del(headerAuthorization)
		}
		return
	}
	if err != nil {
		// the header set by the last refresh stays as a fallback
		slog.Error("GATEWAY", "message", "cannot read the stored credentials", "error", err)
		return
	}
	if token := models.StripBearer(pair.AccessToken); token != "" {
		req.Header.Set(headerAuthorization, models.BearerValue(token))
	}
}

// newerCredentials returns the stored pair when its access token differs from the rejected one,
// which happens when the 401 arrives after another request already finished the refresh.
func (g *Gateway) newerCredentials(ctx context.Context, sessionKey string, rejected string) (models.CredentialPair, bool) {
	pair, err := g.store.GetCredentials(ctx, sessionKey)
	if err != nil || pair.AccessToken == "" {
		return models.CredentialPair{}, false
	}
	if rejected == "" || models.BearerValue(pair.AccessToken) == rejected {
		return models.CredentialPair{}, false
	}
	return pair, true
}

// SetDefaultHeader sets a header sent with every request
func (g *Gateway) SetDefaultHeader(key, value string) {
	g.headersLock.Lock()
	defer g.headersLock.Unlock()
	g.defaultHeaders.Set(key, value)
}

// SetCredentials stores a pair obtained at login and mirrors it into the token cookie
func (g *Gateway) SetCredentials(ctx context.Context, pair models.CredentialPair) error {
	sessionKey := SessionKey(ctx)
	err := g.store.SetCredentials(ctx, sessionKey, pair)
	if err != nil {
		return err
	}
	g.setSessionAuth(sessionKey, pair.AccessToken)
	return g.mirror.MirrorCredentials(ctx, pair)
}

// ClearCredentials forgets the pair of the session key, as done on logout
func (g *Gateway) ClearCredentials(ctx context.Context) error {
	sessionKey := SessionKey(ctx)
	g.setSessionAuth(sessionKey, "")
	err := g.store.RemoveCredentials(ctx, sessionKey)
	if err != nil {
		return err
	}
	return g.mirror.ClearCredentials(ctx)
}

func (g *Gateway) setSessionAuth(sessionKey, accessToken string) {
	g.headersLock.Lock()
	defer g.headersLock.Unlock()
	if accessToken == "" {
		delete(g.sessionAuth, sessionKey)
		return
	}
	g.sessionAuth[sessionKey] = models.BearerValue(accessToken)
}

func drainAndClose(res *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, maxSniffBytes))
	res.Body.Close()
}
