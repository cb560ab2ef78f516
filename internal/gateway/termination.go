package gateway

import (
	"context"
	"errors"
	"log/slog"

	"github.com/goalgrid/goalgrid-gateway/internal/gwerrors"
)

func (g *Gateway) epoch(sessionKey string) uint64 {
	g.epochLock.Lock()
	defer g.epochLock.Unlock()
	return g.epochs[sessionKey]
}

// terminate clears the credentials of the session key and invokes the terminator, unless the
// session was already terminated since epoch was read. The returned error is always the
// termination error for the caller.
func (g *Gateway) terminate(ctx context.Context, sessionKey string, epoch uint64, reason error, cause error) error {
	termErr := &gwerrors.TerminationError{Reason: reason, Cause: cause}
	g.epochLock.Lock()
	if g.epochs[sessionKey] != epoch {
		g.epochLock.Unlock()
		return termErr
	}
	g.epochs[sessionKey] = epoch + 1
	g.epochLock.Unlock()

	g.setSessionAuth(sessionKey, "")
	err := g.store.RemoveCredentials(ctx, sessionKey)
	if err != nil {
		slog.Error("GATEWAY", "message", "cannot remove the stored credentials", "error", err)
	}
	err = g.mirror.ClearCredentials(ctx)
	if err != nil {
		slog.Error("GATEWAY", "message", "cannot clear the token cookie", "error", err)
	}
	g.metrics.Termination(reasonLabel(reason))
	g.terminator.Terminate(ctx, sessionKey, termErr)
	return termErr
}

func reasonLabel(reason error) string {
	switch {
	case errors.Is(reason, gwerrors.ErrTransport):
		return "transport"
	case errors.Is(reason, gwerrors.ErrForbiddenOrInvalidToken):
		return "forbidden_or_invalid_token"
	case errors.Is(reason, gwerrors.ErrRefreshFailed):
		return "refresh_failed"
	case errors.Is(reason, gwerrors.ErrRefreshWaitTimeout):
		return "wait_timeout"
	default:
		return "other"
	}
}
