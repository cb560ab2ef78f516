package gateway

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/goalgrid/goalgrid-gateway/internal/credentials"
	"github.com/goalgrid/goalgrid-gateway/internal/models"
	"github.com/stretchr/testify/require"
)

var (
	oldPair = models.CredentialPair{AccessToken: "old-access", RefreshToken: "old-refresh"}
	newPair = models.CredentialPair{AccessToken: "new-access", RefreshToken: "new-refresh"}
)

type fakeRefresher struct {
	calls atomic.Int32
	// closed to let the refresh return, nil returns immediately
	release chan struct{}
	started chan struct{}
	once    sync.Once
	pair    models.CredentialPair
	err     error
}

func newFakeRefresher(pair models.CredentialPair, err error) *fakeRefresher {
	return &fakeRefresher{pair: pair, err: err, started: make(chan struct{})}
}

func (f *fakeRefresher) Refresh(ctx context.Context, refreshToken string) (models.CredentialPair, error) {
	f.calls.Add(1)
	f.once.Do(func() { close(f.started) })
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return models.CredentialPair{}, ctx.Err()
		}
	}
	return f.pair, f.err
}

type termination struct {
	sessionKey string
	reason     error
}

type fakeTerminator struct {
	lock         sync.Mutex
	terminations []termination
}

func (f *fakeTerminator) Terminate(_ context.Context, sessionKey string, reason error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.terminations = append(f.terminations, termination{sessionKey: sessionKey, reason: reason})
}

func (f *fakeTerminator) count() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return len(f.terminations)
}

type fakeMirror struct {
	lock     sync.Mutex
	mirrored []models.CredentialPair
	cleared  int
}

func (f *fakeMirror) MirrorCredentials(_ context.Context, pair models.CredentialPair) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.mirrored = append(f.mirrored, pair)
	return nil
}

func (f *fakeMirror) ClearCredentials(context.Context) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.cleared++
	return nil
}

type fakeMetrics struct {
	lock         sync.Mutex
	refreshes    map[string]int
	terminations map[string]int
	retries      int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{refreshes: map[string]int{}, terminations: map[string]int{}}
}

func (f *fakeMetrics) Refresh(outcome string) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.refreshes[outcome]++
}

func (f *fakeMetrics) Termination(reason string) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.terminations[reason]++
}

func (f *fakeMetrics) Retry() {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.retries++
}

type seenRequest struct {
	Path          string
	Authorization string
	RequestID     string
	Body          string
}

// backend accepts the new access token and rejects everything else with 401
type backend struct {
	server   *httptest.Server
	lock     sync.Mutex
	seen     []seenRequest
	rejected atomic.Int32
	// called after a request was rejected, with the number of rejections so far
	onReject func(n int32)
	// overrides the response for accepted requests
	respond func(w http.ResponseWriter, r *http.Request)
}

func newBackend(t *testing.T) *backend {
	b := &backend{}
	b.server = httptest.NewServer(http.HandlerFunc(b.handle))
	t.Cleanup(b.server.Close)
	return b
}

func (b *backend) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	b.lock.Lock()
	b.seen = append(b.seen, seenRequest{
		Path:          r.URL.Path,
		Authorization: r.Header.Get("Authorization"),
		RequestID:     r.Header.Get("X-Request-ID"),
		Body:          string(body),
	})
	b.lock.Unlock()
	if r.Header.Get("Authorization") != models.BearerValue(newPair.AccessToken) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Unauthorized"}`))
		n := b.rejected.Add(1)
		if b.onReject != nil {
			// the response is flushed once the handler returns
			go b.onReject(n)
		}
		return
	}
	if b.respond != nil {
		b.respond(w, r)
		return
	}
	_, _ = w.Write(body)
}

func (b *backend) requests() []seenRequest {
	b.lock.Lock()
	defer b.lock.Unlock()
	output := make([]seenRequest, len(b.seen))
	copy(output, b.seen)
	return output
}

func (b *backend) acceptedPaths() []string {
	output := []string{}
	for _, req := range b.requests() {
		if req.Authorization == models.BearerValue(newPair.AccessToken) {
			output = append(output, req.Path)
		}
	}
	return output
}

type testGateway struct {
	*Gateway
	store      *credentials.MemoryStore
	terminator *fakeTerminator
	mirror     *fakeMirror
	metrics    *fakeMetrics
}

func newTestGateway(t *testing.T, refresher RefreshEndpoint, options ...GatewayOption) testGateway {
	store := credentials.NewMemoryStore()
	require.NoError(t, store.SetCredentials(context.Background(), "", oldPair))
	tg := testGateway{
		store:      store,
		terminator: &fakeTerminator{},
		mirror:     &fakeMirror{},
		metrics:    newFakeMetrics(),
	}
	options = append([]GatewayOption{
		WithCredentialStore(store),
		WithRefreshEndpoint(refresher),
		WithSessionTerminator(tg.terminator),
		WithCookieMirror(tg.mirror),
		WithMetrics(tg.metrics),
	}, options...)
	gw, err := NewGateway(options...)
	require.NoError(t, err)
	tg.Gateway = gw
	return tg
}

func newRequest(t *testing.T, ctx context.Context, method, url string, body io.Reader) *http.Request {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	require.NoError(t, err)
	return req
}
