package config

import (
	"fmt"
	"time"
)

const (
	CredentialStoreMemory string = "memory"
	CredentialStoreBolt   string = "bolt"
	CredentialStoreRedis  string = "redis"
)

type TokenEncryptionConfig struct {
	Enabled   bool
	SecretKey RedactedString
}

type CredentialsConfig struct {
	// One of memory, bolt or redis
	Type string
	// Location of the bolt database file when Type is bolt
	BoltPath        string
	TokenEncryption TokenEncryptionConfig
}

func (c CredentialsConfig) Validate(e RunningEnvironment) error {
	switch c.Type {
	case CredentialStoreRedis:
	case CredentialStoreBolt:
		if c.BoltPath == "" {
			return fmt.Errorf("the bolt credential store requires a path")
		}
	case CredentialStoreMemory:
		if e == Production {
			return fmt.Errorf("the in-memory credential store cannot be used in production")
		}
	default:
		return fmt.Errorf("unrecognized credential store type %q", c.Type)
	}
	if c.TokenEncryption.Enabled && len(c.TokenEncryption.SecretKey) != 32 {
		return fmt.Errorf(
			"token encryption key has to be 32 bytes long, the provided one is %d long",
			len(c.TokenEncryption.SecretKey),
		)
	}
	return nil
}

type CookieConfig struct {
	// Lifetime of the token cookie when the access token carries no expiry claim
	FallbackTTL time.Duration
}

func (c CookieConfig) Validate() error {
	if c.FallbackTTL <= 0 {
		return fmt.Errorf("the cookie fallback TTL (%s) needs to be greater than 0", c.FallbackTTL)
	}
	return nil
}
