package models

import (
	"context"
	"time"
)

type Encryptor interface {
	Encrypt(value string) (encrypted string, err error)
	Decrypt(value string) (decrypted string, err error)
}

type IDGenerator interface {
	ID() (string, error)
}

type CredentialGetter interface {
	GetCredentials(ctx context.Context, sessionKey string) (CredentialPair, error)
}

type CredentialSetter interface {
	SetCredentials(ctx context.Context, sessionKey string, pair CredentialPair) error
}

type CredentialRemover interface {
	RemoveCredentials(ctx context.Context, sessionKey string) error
}

type ExpiringCredentialsGetter interface {
	GetExpiringSessionKeys(ctx context.Context, expiryEnd time.Time) ([]string, error)
}

type SessionGetter interface {
	GetSession(ctx context.Context, sessionID string) (Session, error)
}

type SessionSetter interface {
	SetSession(ctx context.Context, session Session) error
}

type SessionRemover interface {
	RemoveSession(ctx context.Context, sessionID string) error
}

type SessionRepository interface {
	SessionGetter
	SessionSetter
	SessionRemover
}
