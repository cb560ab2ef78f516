package sessions

import (
	"context"
	"log/slog"
)

// Remove deletes the session and the credential pair stored under its ID
func (sessions *SessionStore) Remove(ctx context.Context, sessionID string) error {
	err := sessions.credentials.RemoveCredentials(ctx, sessionID)
	if err != nil {
		return err
	}
	return sessions.sessionRepo.RemoveSession(ctx, sessionID)
}

// Terminate ends the session of a session key after the gateway could not recover its
// credentials. The browser is told to log in again by the handler that got the error.
func (sessions *SessionStore) Terminate(ctx context.Context, sessionKey string, reason error) {
	slog.Info("SESSION MIDDLEWARE", "message", "terminating session", "reason", reason)
	if sessionKey == "" {
		return
	}
	err := sessions.Remove(ctx, sessionKey)
	if err != nil {
		slog.Error("SESSION MIDDLEWARE", "message", "could not remove terminated session", "error", err)
	}
}
