package models

import (
	"time"
)

var randomIDGenerator IDGenerator = RandomGenerator{Length: 24}

// Session is the browser session persisted by the gateway. Its ID is the
// session key under which the credential pair of the browser is stored.
type Session struct {
	ID       string
	Username string
	// UTC timestamp for when the session was created
	CreatedAt time.Time
	// UTC timestamp after which the session is no longer valid
	ExpiresAt time.Time
}

type SessionOption func(*Session) error

func WithTTL(ttl time.Duration) SessionOption {
	return func(s *Session) error {
		s.ExpiresAt = s.CreatedAt.Add(ttl)
		return nil
	}
}

func WithUsername(username string) SessionOption {
	return func(s *Session) error {
		s.Username = username
		return nil
	}
}

func WithIDGenerator(generator IDGenerator) SessionOption {
	return func(s *Session) error {
		id, err := generator.ID()
		if err != nil {
			return err
		}
		s.ID = id
		return nil
	}
}

// NewSession creates a session with a random ID. Options are applied in order
// after the ID and creation time are set.
func NewSession(options ...SessionOption) (Session, error) {
	id, err := randomIDGenerator.ID()
	if err != nil {
		return Session{}, err
	}
	session := Session{ID: id, CreatedAt: time.Now().UTC()}
	for _, opt := range options {
		err := opt(&session)
		if err != nil {
			return Session{}, err
		}
	}
	return session, nil
}

// Expired is true when the session has an expiry that has passed
func (s *Session) Expired() bool {
	if s.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().UTC().After(s.ExpiresAt)
}
