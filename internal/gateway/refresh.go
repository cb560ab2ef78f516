package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/goalgrid/goalgrid-gateway/internal/gwerrors"
	"github.com/goalgrid/goalgrid-gateway/internal/metrics"
	"github.com/goalgrid/goalgrid-gateway/internal/models"
)

// Refresh joins the refresh in flight for the session key of ctx or starts one.
// A failed refresh terminates the session.
func (g *Gateway) Refresh(ctx context.Context) (models.CredentialPair, error) {
	sessionKey := SessionKey(ctx)
	return g.awaitRefresh(ctx, sessionKey, g.epoch(sessionKey))
}

// refreshKey scopes a refresh flight to one session epoch, so a request sent before a
// termination never settles requests of the session that followed it.
func refreshKey(sessionKey string, epoch uint64) string {
	return sessionKey + "\x00" + strconv.FormatUint(epoch, 10)
}

// awaitRefresh waits for the single refresh of the session key. Only the first caller starts
// the refresh call, every other caller is settled with the same outcome.
func (g *Gateway) awaitRefresh(ctx context.Context, sessionKey string, epoch uint64) (models.CredentialPair, error) {
	results := g.refreshes.DoChan(refreshKey(sessionKey, epoch), func() (any, error) {
		return g.refresh(ctx, sessionKey, epoch)
	})
	var timeout <-chan time.Time
	if g.waitTimeout > 0 {
		timer := time.NewTimer(g.waitTimeout)
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case res := <-results:
		if res.Err != nil {
			return models.CredentialPair{}, res.Err
		}
		return res.Val.(models.CredentialPair), nil
	case <-ctx.Done():
		return models.CredentialPair{}, ctx.Err()
	case <-timeout:
		slog.Info(
			"GATEWAY",
			"message",
			"timed out waiting for the credential refresh",
			"waitTimeout",
			g.waitTimeout,
		)
		return models.CredentialPair{}, g.terminate(ctx, sessionKey, epoch, gwerrors.ErrRefreshWaitTimeout, nil)
	}
}

// refresh runs once per refresh episode. It is detached from the cancellation of the
// request that started it since other requests wait on its outcome.
func (g *Gateway) refresh(ctx context.Context, sessionKey string, epoch uint64) (models.CredentialPair, error) {
	if g.epoch(sessionKey) != epoch {
		// the session ended after the triggering request was sent
		return models.CredentialPair{}, &gwerrors.TerminationError{Reason: gwerrors.ErrRefreshFailed, Cause: gwerrors.ErrSessionTerminated}
	}
	detached := context.WithoutCancel(ctx)
	ctx, cancel := context.WithTimeout(detached, g.refreshTimeout)
	defer cancel()

	current, err := g.store.GetCredentials(ctx, sessionKey)
	if err == nil && current.RefreshToken == "" {
		err = gwerrors.ErrMissingCredentials
	}
	if err != nil {
		g.metrics.Refresh(metrics.RefreshFailure)
		return models.CredentialPair{}, g.terminate(detached, sessionKey, epoch, gwerrors.ErrRefreshFailed, err)
	}
	pair, err := g.refresher.Refresh(ctx, current.RefreshToken)
	if err != nil {
		g.metrics.Refresh(metrics.RefreshFailure)
		slog.Info("GATEWAY", "message", "the credential refresh failed", "error", err)
		return models.CredentialPair{}, g.terminate(detached, sessionKey, epoch, gwerrors.ErrRefreshFailed, err)
	}
	err = g.persist(ctx, sessionKey, epoch, pair)
	if err != nil {
		g.metrics.Refresh(metrics.RefreshFailure)
		return models.CredentialPair{}, err
	}
	g.metrics.Refresh(metrics.RefreshSuccess)
	slog.Debug("GATEWAY", "message", "credentials refreshed", "credentials", pair.String())
	return pair, nil
}

// persist stores the refreshed pair unless the session was terminated while the refresh was running
func (g *Gateway) persist(ctx context.Context, sessionKey string, epoch uint64, pair models.CredentialPair) error {
	g.epochLock.Lock()
	defer g.epochLock.Unlock()
	if g.epochs[sessionKey] != epoch {
		return &gwerrors.TerminationError{
			Reason: gwerrors.ErrRefreshFailed,
			Cause:  fmt.Errorf("the session was terminated while refreshing"),
		}
	}
	err := g.store.SetCredentials(ctx, sessionKey, pair)
	if err != nil {
		return fmt.Errorf("cannot store the refreshed credentials: %w", err)
	}
	g.setSessionAuth(sessionKey, pair.AccessToken)
	err = g.mirror.MirrorCredentials(ctx, pair)
	if err != nil {
		slog.Error("GATEWAY", "message", "cannot mirror the refreshed credentials", "error", err)
	}
	return nil
}
