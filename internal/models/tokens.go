package models

import (
	"fmt"
	"time"
)

// CredentialRecord is the persisted form of a credential pair for one session key
type CredentialRecord struct {
	SessionKey           string
	AccessToken          string
	RefreshToken         string
	AccessTokenExpiresAt time.Time
	UpdatedAt            time.Time
}

// NewCredentialRecord builds the record stored for a session key at time now
func NewCredentialRecord(sessionKey string, pair CredentialPair, now time.Time) CredentialRecord {
	record := CredentialRecord{
		SessionKey:   sessionKey,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		UpdatedAt:    now.UTC(),
	}
	if expiresAt, ok := pair.AccessTokenExpiry(); ok {
		record.AccessTokenExpiresAt = expiresAt
	}
	return record
}

func (r CredentialRecord) Pair() CredentialPair {
	return CredentialPair{AccessToken: r.AccessToken, RefreshToken: r.RefreshToken}
}

// Encrypt encrypts both token values if an encryptor is provided
func (r CredentialRecord) Encrypt(encryptor Encryptor) (CredentialRecord, error) {
	if encryptor == nil {
		return r, nil
	}
	output := r
	var err error
	if output.AccessToken, err = encryptor.Encrypt(r.AccessToken); err != nil {
		return CredentialRecord{}, err
	}
	if output.RefreshToken, err = encryptor.Encrypt(r.RefreshToken); err != nil {
		return CredentialRecord{}, err
	}
	return output, nil
}

// Decrypt decrypts both token values if an encryptor is provided
func (r CredentialRecord) Decrypt(encryptor Encryptor) (CredentialRecord, error) {
	if encryptor == nil {
		return r, nil
	}
	output := r
	var err error
	if output.AccessToken, err = encryptor.Decrypt(r.AccessToken); err != nil {
		return CredentialRecord{}, err
	}
	if output.RefreshToken, err = encryptor.Decrypt(r.RefreshToken); err != nil {
		return CredentialRecord{}, err
	}
	return output, nil
}

// ExpiresSoon is true when the access token expires within the margin.
// Records without a known expiry never expire soon.
func (r CredentialRecord) ExpiresSoon(margin time.Duration) bool {
	if r.AccessTokenExpiresAt.IsZero() {
		return false
	}
	return time.Now().UTC().Add(margin).After(r.AccessTokenExpiresAt)
}

// String implements the Stringer interface for printing the record in logs
func (r CredentialRecord) String() string {
	return fmt.Sprintf(
		"CredentialRecord<SessionKey: %s, AccessToken: %s, RefreshToken: %s, AccessTokenExpiresAt: %s, UpdatedAt: %s>",
		r.SessionKey,
		redact(r.AccessToken),
		redact(r.RefreshToken),
		r.AccessTokenExpiresAt,
		r.UpdatedAt,
	)
}
