package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const bearerPrefix string = "Bearer "

// CredentialPair is the access and refresh credential issued by the backend at login or refresh.
type CredentialPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Empty is true when neither credential is set
func (c CredentialPair) Empty() bool {
	return c.AccessToken == "" && c.RefreshToken == ""
}

// AccessTokenExpiry reads the exp claim of the access token without verifying the signature.
// The second return value is false when the token is not a JWT or carries no expiry.
func (c CredentialPair) AccessTokenExpiry() (time.Time, bool) {
	return TokenExpiry(c.AccessToken)
}

// String implements the Stringer interface so that credentials never end up in logs
func (c CredentialPair) String() string {
	return fmt.Sprintf(
		"CredentialPair<AccessToken: %s, RefreshToken: %s>",
		redact(c.AccessToken),
		redact(c.RefreshToken),
	)
}

// BearerValue returns the Authorization header value for a token. A token that
// already carries the scheme is returned unchanged.
func BearerValue(token string) string {
	return bearerPrefix + StripBearer(token)
}

// StripBearer removes a leading "Bearer " scheme (case-insensitive) from a token.
func StripBearer(token string) string {
	token = strings.TrimSpace(token)
	scheme := strings.TrimSpace(bearerPrefix)
	if len(token) < len(scheme) || !strings.EqualFold(token[:len(scheme)], scheme) {
		return token
	}
	rest := token[len(scheme):]
	if rest == "" {
		return ""
	}
	if rest[0] != ' ' && rest[0] != '\t' {
		// "Bearertoken" is a token, not a scheme
		return token
	}
	return strings.TrimSpace(rest)
}

// TokenExpiry reads the exp claim of a JWT without verifying it.
func TokenExpiry(token string) (time.Time, bool) {
	token = StripBearer(token)
	if token == "" {
		return time.Time{}, false
	}
	claims := jwt.RegisteredClaims{}
	_, _, err := jwt.NewParser().ParseUnverified(token, &claims)
	if err != nil || claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time.UTC(), true
}

func redact(value string) string {
	if value == "" {
		return "<empty>"
	}
	return "redacted"
}
