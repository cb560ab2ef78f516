package main

import (
	"fmt"
	"log/slog"

	"github.com/goalgrid/goalgrid-gateway/internal/config"
	"github.com/goalgrid/goalgrid-gateway/internal/credentials"
	"github.com/goalgrid/goalgrid-gateway/internal/db"
	"github.com/goalgrid/goalgrid-gateway/internal/gateway"
	"github.com/goalgrid/goalgrid-gateway/internal/models"
	"github.com/goalgrid/goalgrid-gateway/internal/sessions"
)

// storage holds the credential and session backends selected in the configuration
type storage struct {
	credentials gateway.CredentialStore
	sessions    models.SessionRepository
	// only the redis store indexes the credentials by expiry
	expiring models.ExpiringCredentialsGetter
	close    func() error
}

func (s storage) Close() {
	if s.close == nil {
		return
	}
	if err := s.close(); err != nil {
		slog.Error("closing the storage failed", "error", err)
	}
}

func newStorage(gwConfig config.Config) (storage, error) {
	encryption := gwConfig.Credentials.TokenEncryption
	encrypted := encryption.Enabled && encryption.SecretKey != ""
	switch gwConfig.Credentials.Type {
	case config.CredentialStoreMemory:
		return storage{
			credentials: credentials.NewMemoryStore(),
			sessions:    sessions.NewInMemorySessionRepository(),
		}, nil
	case config.CredentialStoreBolt:
		options := []credentials.BoltStoreOption{}
		if encrypted {
			slog.Info("bolt encryption is enabled")
			encryptor, err := db.NewGCMEncryptor(string(encryption.SecretKey))
			if err != nil {
				return storage{}, err
			}
			options = append(options, credentials.WithBoltEncryptor(encryptor))
		}
		store, err := credentials.OpenBoltStore(gwConfig.Credentials.BoltPath, options...)
		if err != nil {
			return storage{}, err
		}
		return storage{
			credentials: store,
			sessions:    sessions.NewInMemorySessionRepository(),
			close:       store.Close,
		}, nil
	case config.CredentialStoreRedis:
		dbOptions := []db.RedisAdapterOption{db.WithRedisConfig(gwConfig.Redis)}
		if encrypted {
			slog.Info("redis encryption is enabled")
			dbOptions = append(dbOptions, db.WithEncryption(string(encryption.SecretKey)))
		}
		dbAdapter, err := db.NewRedisAdapter(dbOptions...)
		if err != nil {
			return storage{}, err
		}
		return storage{
			credentials: dbAdapter,
			sessions:    dbAdapter,
			expiring:    dbAdapter,
		}, nil
	default:
		return storage{}, fmt.Errorf("unrecognized credential store type %q", gwConfig.Credentials.Type)
	}
}
