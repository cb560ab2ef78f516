package credentials

import (
	"net/http"
	"time"

	"github.com/goalgrid/goalgrid-gateway/internal/config"
	"github.com/goalgrid/goalgrid-gateway/internal/models"
)

// TokenCookie builds the same-origin cookie carrying the access token. The cookie
// expires with the access token, or after fallbackTTL when the token has no exp claim.
func TokenCookie(pair models.CredentialPair, secure bool, fallbackTTL time.Duration, now time.Time) *http.Cookie {
	expiresAt, ok := pair.AccessTokenExpiry()
	if !ok {
		expiresAt = now.Add(fallbackTTL)
	}
	maxAge := int(expiresAt.Sub(now).Seconds())
	if maxAge <= 0 {
		// a zero MaxAge would turn this into a session cookie
		return ExpiredTokenCookie(secure)
	}
	return &http.Cookie{
		Name:     config.TokenCookieName,
		Value:    models.StripBearer(pair.AccessToken),
		Path:     "/",
		Expires:  expiresAt.UTC(),
		MaxAge:   maxAge,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// ExpiredTokenCookie instructs the client to drop the token cookie
func ExpiredTokenCookie(secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     config.TokenCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}
