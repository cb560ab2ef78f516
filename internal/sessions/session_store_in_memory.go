package sessions

import (
	"context"
	"sync"

	"github.com/goalgrid/goalgrid-gateway/internal/gwerrors"
	"github.com/goalgrid/goalgrid-gateway/internal/models"
)

// InMemorySessionRepository keeps sessions in memory, used with the in-memory credential store
type InMemorySessionRepository struct {
	lock     sync.RWMutex
	sessions map[string]models.Session
}

func (db *InMemorySessionRepository) GetSession(_ context.Context, id string) (models.Session, error) {
	db.lock.RLock()
	defer db.lock.RUnlock()
	session, found := db.sessions[id]
	if !found {
		return models.Session{}, gwerrors.ErrSessionNotFound
	}
	if session.Expired() {
		return models.Session{}, gwerrors.ErrSessionExpired
	}
	return session, nil
}

func (db *InMemorySessionRepository) SetSession(_ context.Context, session models.Session) error {
	db.lock.Lock()
	defer db.lock.Unlock()
	db.sessions[session.ID] = session
	return nil
}

func (db *InMemorySessionRepository) RemoveSession(_ context.Context, id string) error {
	db.lock.Lock()
	defer db.lock.Unlock()
	delete(db.sessions, id)
	return nil
}

func NewInMemorySessionRepository() *InMemorySessionRepository {
	return &InMemorySessionRepository{sessions: map[string]models.Session{}}
}
