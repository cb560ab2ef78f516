package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/goalgrid/goalgrid-gateway/internal/gwerrors"
	"github.com/goalgrid/goalgrid-gateway/internal/models"
	bolt "go.etcd.io/bbolt"
)

const (
	boltDirPerm     = fs.FileMode(0o700)
	boltFilePerm    = fs.FileMode(0o600)
	boltOpenTimeout = 5 * time.Second
)

var credentialsBucket = []byte("credentials")

// bbolt rejects empty keys and the CLI's session key is empty, so every key carries a prefix
const boltKeyPrefix = "session:"

func boltKey(sessionKey string) []byte {
	return []byte(boltKeyPrefix + sessionKey)
}

// BoltStore persists credential pairs in a local bbolt file, one JSON record per session key.
type BoltStore struct {
	db        *bolt.DB
	encryptor models.Encryptor
}

type BoltStoreOption func(*BoltStore) error

// WithBoltEncryptor encrypts the token values before they are written to disk
func WithBoltEncryptor(encryptor models.Encryptor) BoltStoreOption {
	return func(b *BoltStore) error {
		b.encryptor = encryptor
		return nil
	}
}

// OpenBoltStore opens the database at path, creating the file and its directory if needed.
func OpenBoltStore(path string, options ...BoltStoreOption) (*BoltStore, error) {
	store := BoltStore{}
	for _, opt := range options {
		err := opt(&store)
		if err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), boltDirPerm); err != nil {
		return nil, fmt.Errorf("creating credentials directory: %w", err)
	}
	db, err := bolt.Open(path, boltFilePerm, &bolt.Options{Timeout: boltOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening credentials db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(credentialsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing credentials db: %w", err)
	}
	store.db = db
	return &store, nil
}

func (b *BoltStore) Close() error {
	return b.db.Close()
}

func (b *BoltStore) GetCredentials(_ context.Context, sessionKey string) (models.CredentialPair, error) {
	var record models.CredentialRecord
	err := b.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(credentialsBucket).Get(boltKey(sessionKey))
		if raw == nil {
			return gwerrors.ErrMissingCredentials
		}
		return json.Unmarshal(raw, &record)
	})
	if err != nil {
		return models.CredentialPair{}, err
	}
	record, err = record.Decrypt(b.encryptor)
	if err != nil {
		return models.CredentialPair{}, err
	}
	return record.Pair(), nil
}

func (b *BoltStore) SetCredentials(_ context.Context, sessionKey string, pair models.CredentialPair) error {
	record, err := models.NewCredentialRecord(sessionKey, pair, time.Now()).Encrypt(b.encryptor)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(credentialsBucket).Put(boltKey(sessionKey), raw)
	})
}

func (b *BoltStore) RemoveCredentials(_ context.Context, sessionKey string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(credentialsBucket).Delete(boltKey(sessionKey))
	})
}

// UpdatedAt reports when the pair for the session key was last written
func (b *BoltStore) UpdatedAt(sessionKey string) (time.Time, error) {
	var record models.CredentialRecord
	err := b.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(credentialsBucket).Get(boltKey(sessionKey))
		if raw == nil {
			return gwerrors.ErrMissingCredentials
		}
		return json.Unmarshal(raw, &record)
	})
	if err != nil {
		return time.Time{}, err
	}
	return record.UpdatedAt, nil
}
