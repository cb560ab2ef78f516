// Package credentials holds the local credential stores and the mirrors that
// copy the access token into the same-origin token cookie.
package credentials

import (
	"context"
	"sync"

	"github.com/goalgrid/goalgrid-gateway/internal/gwerrors"
	"github.com/goalgrid/goalgrid-gateway/internal/models"
)

// MemoryStore keeps credential pairs in memory, keyed by session key.
// It does not survive restarts and is meant for development and tests.
type MemoryStore struct {
	lock  sync.RWMutex
	pairs map[string]models.CredentialPair
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{pairs: map[string]models.CredentialPair{}}
}

func (m *MemoryStore) GetCredentials(_ context.Context, sessionKey string) (models.CredentialPair, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	pair, found := m.pairs[sessionKey]
	if !found {
		return models.CredentialPair{}, gwerrors.ErrMissingCredentials
	}
	return pair, nil
}

func (m *MemoryStore) SetCredentials(_ context.Context, sessionKey string, pair models.CredentialPair) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.pairs[sessionKey] = pair
	return nil
}

func (m *MemoryStore) RemoveCredentials(_ context.Context, sessionKey string) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	delete(m.pairs, sessionKey)
	return nil
}
