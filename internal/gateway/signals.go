package gateway

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"github.com/goalgrid/goalgrid-gateway/internal/gwerrors"
	"github.com/tidwall/gjson"
)

const maxSniffBytes int64 = 64 * 1024

// Backend messages that mark the credentials as unusable. The backend reports these
// in free text, so the match is on substrings of the lower-cased message.
var invalidTokenMessages = []string{"invalid token", "expired token"}

// secondarySignal reports whether an error response ends the session: a 403, a repeated 401,
// or a backend message about an invalid or expired token. The body of res stays readable.
func secondarySignal(res *http.Response, retried bool) (bool, error) {
	if res.StatusCode < http.StatusBadRequest {
		return false, nil
	}
	message := peekMessage(res)
	cause := &gwerrors.HTTPError{Status: res.StatusCode, Message: message}
	if res.StatusCode == http.StatusForbidden || (retried && res.StatusCode == http.StatusUnauthorized) {
		return true, cause
	}
	if mentionsInvalidToken(message) {
		return true, cause
	}
	return false, nil
}

func mentionsInvalidToken(message string) bool {
	message = strings.ToLower(message)
	for _, needle := range invalidTokenMessages {
		if strings.Contains(message, needle) {
			return true
		}
	}
	return false
}

// peekMessage reads the message or error field of a JSON body, or the raw body otherwise.
// At most maxSniffBytes are read and the body of res is restored afterwards.
func peekMessage(res *http.Response) string {
	if res.Body == nil || res.Body == http.NoBody {
		return ""
	}
	prefix, err := io.ReadAll(io.LimitReader(res.Body, maxSniffBytes))
	res.Body = &peekedBody{Reader: io.MultiReader(bytes.NewReader(prefix), res.Body), Closer: res.Body}
	if err != nil {
		return ""
	}
	if gjson.ValidBytes(prefix) {
		for _, field := range []string{"message", "error"} {
			if value := gjson.GetBytes(prefix, field); value.Type == gjson.String {
				return value.String()
			}
		}
	}
	return strings.TrimSpace(string(prefix))
}

type peekedBody struct {
	io.Reader
	io.Closer
}
