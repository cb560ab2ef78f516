package gateway

import (
	"context"

	"github.com/goalgrid/goalgrid-gateway/internal/models"
)

// CredentialStore holds the credential pair of each session key
type CredentialStore interface {
	models.CredentialGetter
	models.CredentialSetter
	models.CredentialRemover
}

// RefreshEndpoint exchanges a refresh token for a new credential pair
type RefreshEndpoint interface {
	Refresh(ctx context.Context, refreshToken string) (models.CredentialPair, error)
}

// CookieMirror copies the access token into the same-origin token cookie
type CookieMirror interface {
	MirrorCredentials(ctx context.Context, pair models.CredentialPair) error
	ClearCredentials(ctx context.Context) error
}

// SessionTerminator is invoked once the session cannot be recovered
type SessionTerminator interface {
	Terminate(ctx context.Context, sessionKey string, reason error)
}

type TerminatorFunc func(ctx context.Context, sessionKey string, reason error)

func (f TerminatorFunc) Terminate(ctx context.Context, sessionKey string, reason error) {
	f(ctx, sessionKey, reason)
}

// MetricsRecorder receives the refresh and termination events of the gateway
type MetricsRecorder interface {
	Refresh(outcome string)
	Termination(reason string)
	Retry()
}

type noopMirror struct{}

func (noopMirror) MirrorCredentials(context.Context, models.CredentialPair) error { return nil }
func (noopMirror) ClearCredentials(context.Context) error                        { return nil }

type noopMetrics struct{}

func (noopMetrics) Refresh(string)     {}
func (noopMetrics) Termination(string) {}
func (noopMetrics) Retry()             {}

type sessionKeyCtxKey struct{}

// WithSessionKey selects the stored credential pair used for requests made with ctx
func WithSessionKey(ctx context.Context, sessionKey string) context.Context {
	return context.WithValue(ctx, sessionKeyCtxKey{}, sessionKey)
}

// SessionKey returns the session key of ctx, the empty key when none is set
func SessionKey(ctx context.Context) string {
	sessionKey, _ := ctx.Value(sessionKeyCtxKey{}).(string)
	return sessionKey
}
