package shared

import (
	"errors"
	"fmt"
)

var (
	// Configuration errors
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authorization errors
	ErrAuthMismatch     = fmt.Errorf("authorization state mismatch")
	ErrTokenExchange    = fmt.Errorf("token exchange failed")
	ErrAuthExpired      = fmt.Errorf("authorization expired")
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrTimeout          = fmt.Errorf("operation timed out")

	// Remote storage errors
	ErrRateLimited = fmt.Errorf("rate limited")
	ErrNotFound    = fmt.Errorf("not found")
	ErrRemoteError = fmt.Errorf("remote error")

	// Local and eligibility errors
	ErrLocalIO    = fmt.Errorf("local I/O error")
	ErrNotAllowed = fmt.Errorf("document type not allowed")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)

// reasons lists the taxonomy in match order; authorization kinds come first so
// a wrapped chain carrying several sentinels reports the one that aborts.
var reasons = []struct {
	err  error
	name string
}{
	{ErrAuthMismatch, "AuthMismatch"},
	{ErrTokenExchange, "TokenExchangeError"},
	{ErrAuthExpired, "AuthExpired"},
	{ErrNotAuthenticated, "NotAuthenticated"},
	{ErrRateLimited, "RateLimited"},
	{ErrNotFound, "NotFound"},
	{ErrNotAllowed, "NotAllowed"},
	{ErrLocalIO, "LocalIOError"},
	{ErrRemoteError, "RemoteError"},
}

// Reason maps err onto its taxonomy name. Unclassified errors report as RemoteError.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.name
		}
	}
	return "RemoteError"
}

// IsAuthError reports whether err must abort the current operation and send
// the user back through authorization.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrAuthMismatch) ||
		errors.Is(err, ErrTokenExchange) ||
		errors.Is(err, ErrAuthExpired) ||
		errors.Is(err, ErrNotAuthenticated)
}
