// Package gwerrors contains all common errors used by the gateway.
package gwerrors

import (
	"errors"
	"fmt"
)

var ErrSessionParse = fmt.Errorf("cannot parse session from context")
var ErrSessionNotFound = fmt.Errorf("cannot find the session")
var ErrSessionExpired = fmt.Errorf("the session is expired")
var ErrMissingCredentials = fmt.Errorf("the required credentials cannot be found")
var ErrMissingDBResource = fmt.Errorf("the requested resource cannot be found in the DB")

// Failures classified by the authenticated request gateway.
var (
	ErrTransport               = errors.New("the request did not reach the backend")
	ErrAuthorization           = errors.New("the backend rejected the access credential")
	ErrForbiddenOrInvalidToken = errors.New("the backend reported a forbidden request or an invalid token")
	ErrRefreshFailed           = errors.New("the credential refresh failed")
	ErrRefreshWaitTimeout      = errors.New("timed out waiting for the credential refresh")
	ErrSessionTerminated       = errors.New("the session was terminated")
)

// HTTPError is a non-2xx answer from the backend.
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend responded with status %d", e.Status)
	}
	return fmt.Sprintf("backend responded with status %d: %s", e.Status, e.Message)
}

// TerminationError is returned to callers whose request ended the session.
// It matches ErrSessionTerminated and its reason with errors.Is, and unwraps to the cause.
type TerminationError struct {
	Reason error
	Cause  error
}

func (e *TerminationError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", ErrSessionTerminated, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", ErrSessionTerminated, e.Reason, e.Cause)
}

func (e *TerminationError) Is(target error) bool {
	return target == ErrSessionTerminated || (e.Reason != nil && target == e.Reason)
}

func (e *TerminationError) Unwrap() error {
	return e.Cause
}
