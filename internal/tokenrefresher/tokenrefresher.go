// Package tokenrefresher refreshes the stored credentials of active sessions before the
// access tokens expire, so that browsers rarely hit a 401 in the first place.
package tokenrefresher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/goalgrid/goalgrid-gateway/internal/gateway"
	"github.com/goalgrid/goalgrid-gateway/internal/gwerrors"
	"github.com/goalgrid/goalgrid-gateway/internal/models"
)

// Refresher joins or starts the credential refresh of the session key in the context
type Refresher interface {
	Refresh(ctx context.Context) (models.CredentialPair, error)
}

type TokenRefresher struct {
	ExpiresSoonMinutes int

	credentials models.ExpiringCredentialsGetter
	sessions    models.SessionGetter
	refresher   Refresher
}

func (tr *TokenRefresher) GetScheduler() (*gocron.Scheduler, error) {
	s := gocron.NewScheduler(time.UTC)

	refreshExpiringCredentialsTask := func(job gocron.Job) {
		err := tr.refreshExpiringCredentials(job.Context())
		if err != nil {
			slog.Error("TOKEN REFRESHER", "message", "refreshExpiringCredentials failed", "error", err)
		}
	}

	_, err := s.Every(1).
		Minutes().
		DoWithJobDetails(refreshExpiringCredentialsTask)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (tr *TokenRefresher) refreshExpiringCredentials(ctx context.Context) error {
	expiryEnd := time.Now().Add(time.Duration(tr.ExpiresSoonMinutes) * time.Minute)
	sessionKeys, err := tr.credentials.GetExpiringSessionKeys(ctx, expiryEnd)
	if err != nil {
		return err
	}
	failed := []string{}
	skipped := 0
	for _, sessionKey := range sessionKeys {
		// only sessions that are still in use are worth a refresh
		_, err := tr.sessions.GetSession(ctx, sessionKey)
		if errors.Is(err, gwerrors.ErrSessionNotFound) || errors.Is(err, gwerrors.ErrSessionExpired) {
			skipped++
			continue
		}
		if err != nil {
			slog.Error("TOKEN REFRESHER", "message", "GetSession failed", "error", err)
			failed = append(failed, sessionKey)
			continue
		}
		_, err = tr.refresher.Refresh(gateway.WithSessionKey(ctx, sessionKey))
		if err != nil {
			slog.Error("TOKEN REFRESHER", "message", "Refresh failed", "error", err)
			failed = append(failed, sessionKey)
			continue
		}
	}

	slog.Info(
		"TOKEN REFRESHER",
		"message",
		fmt.Sprintf(
			"%v/%v expiring credentials refreshed",
			len(sessionKeys)-len(failed)-skipped,
			len(sessionKeys),
		),
	)

	if len(failed) != 0 {
		return fmt.Errorf("%d sessions could not be refreshed", len(failed))
	}
	return nil
}

type TokenRefresherOption func(*TokenRefresher) error

func WithExpiresSoonMinutes(expiresSoonMinutes int) TokenRefresherOption {
	return func(tr *TokenRefresher) error {
		tr.ExpiresSoonMinutes = expiresSoonMinutes
		return nil
	}
}

func WithCredentials(credentials models.ExpiringCredentialsGetter) TokenRefresherOption {
	return func(tr *TokenRefresher) error {
		tr.credentials = credentials
		return nil
	}
}

func WithSessions(sessions models.SessionGetter) TokenRefresherOption {
	return func(tr *TokenRefresher) error {
		tr.sessions = sessions
		return nil
	}
}

func WithRefresher(refresher Refresher) TokenRefresherOption {
	return func(tr *TokenRefresher) error {
		tr.refresher = refresher
		return nil
	}
}

// NewTokenRefresher creates a new TokenRefresher that refreshes credentials which are expiring soon.
func NewTokenRefresher(options ...TokenRefresherOption) (*TokenRefresher, error) {
	tr := TokenRefresher{}
	for _, opt := range options {
		err := opt(&tr)
		if err != nil {
			return nil, err
		}
	}
	if tr.ExpiresSoonMinutes <= 0 {
		return nil, fmt.Errorf("invalid value for ExpiresSoonMinutes (%d)", tr.ExpiresSoonMinutes)
	}
	if tr.credentials == nil {
		return nil, fmt.Errorf("credential store not initialized")
	}
	if tr.sessions == nil {
		return nil, fmt.Errorf("session store not initialized")
	}
	if tr.refresher == nil {
		return nil, fmt.Errorf("refresher not initialized")
	}
	return &tr, nil
}
