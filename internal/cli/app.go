package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/goalgrid/goalgrid-gateway/internal/authapi"
	"github.com/goalgrid/goalgrid-gateway/internal/credentials"
	"github.com/goalgrid/goalgrid-gateway/internal/db"
	"github.com/goalgrid/goalgrid-gateway/internal/gateway"
	"github.com/goalgrid/goalgrid-gateway/internal/gwerrors"
)

const loginHint string = "Your session has ended (%s). Run `goalgrid login` to sign in again.\n"

// Streams are the standard streams of the process, replaced in tests
type Streams struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

type App struct {
	config  Config
	streams Streams
	store   *credentials.BoltStore
	mirror  *credentials.JarMirror
	auth    *authapi.Client
	gateway *gateway.Gateway

	lock         sync.Mutex
	quietEnd     bool
	sessionEnded bool
}

// NewApp opens the credential database and wires the gateway. The jar starts with the
// token cookie of the stored pair so that it matches the database.
func NewApp(cfg Config, streams Streams, version string) (*App, error) {
	app := &App{config: cfg, streams: streams}
	options := []credentials.BoltStoreOption{}
	if cfg.EncryptionKey != "" {
		encryptor, err := db.NewGCMEncryptor(cfg.EncryptionKey)
		if err != nil {
			return nil, err
		}
		options = append(options, credentials.WithBoltEncryptor(encryptor))
	}
	store, err := credentials.OpenBoltStore(cfg.CredentialsPath(), options...)
	if err != nil {
		return nil, fmt.Errorf("opening the credential database: %w", err)
	}
	app.store = store
	apiURL := cfg.APIBaseURL
	app.mirror, err = credentials.NewJarMirror(&apiURL, cfg.CookieFallbackTTL)
	if err != nil {
		store.Close()
		return nil, err
	}
	app.auth, err = authapi.NewClient(authapi.WithBaseURL(&apiURL), authapi.WithTimeout(cfg.RequestTimeout))
	if err != nil {
		store.Close()
		return nil, err
	}
	app.gateway, err = gateway.NewGateway(
		gateway.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout, Jar: app.mirror.Jar()}),
		gateway.WithCredentialStore(store),
		gateway.WithRefreshEndpoint(app.auth),
		gateway.WithCookieMirror(app.mirror),
		gateway.WithSessionTerminator(gateway.TerminatorFunc(app.terminate)),
		gateway.WithRefreshTimeout(cfg.RefreshTimeout),
		gateway.WithWaitTimeout(cfg.WaitTimeout),
		gateway.WithDefaultHeader("Accept", "application/json"),
		gateway.WithDefaultHeader("User-Agent", "goalgrid-cli/"+version),
	)
	if err != nil {
		store.Close()
		return nil, err
	}
	pair, err := store.GetCredentials(context.Background(), "")
	if err == nil {
		_ = app.mirror.MirrorCredentials(context.Background(), pair)
	} else if !errors.Is(err, gwerrors.ErrMissingCredentials) {
		slog.Warn("CLI", "message", "cannot read the stored credentials", "error", err)
	}
	return app, nil
}

func (a *App) Close() error {
	return a.store.Close()
}

// terminate tells the user to log in again, the gateway already removed the credentials
func (a *App) terminate(_ context.Context, _ string, reason error) {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.sessionEnded = true
	if a.quietEnd {
		return
	}
	fmt.Fprintf(a.streams.Err, loginHint, terminationReason(reason))
}

func (a *App) ended() bool {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.sessionEnded
}

// quiet suppresses the login hint, a logout that ends the session is expected
func (a *App) quiet() {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.quietEnd = true
}

func terminationReason(err error) string {
	var termErr *gwerrors.TerminationError
	if errors.As(err, &termErr) && termErr.Reason != nil {
		return termErr.Reason.Error()
	}
	return err.Error()
}
