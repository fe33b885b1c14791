package drive

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/desertthunder/docrelay/internal/shared"
	"google.golang.org/api/googleapi"
)

// APIError wraps a shared sentinel with the HTTP status and message Drive returned.
type APIError struct {
	Op         string
	StatusCode int
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("drive: %s: %v: %s", e.Op, e.Err, e.Message)
	}
	return fmt.Sprintf("drive: %s: HTTP %d: %v: %s", e.Op, e.StatusCode, e.Err, e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }

// rateLimitReasons are the googleapi error reasons Drive uses for throttling on 403.
var rateLimitReasons = map[string]bool{
	"rateLimitExceeded":        true,
	"userRateLimitExceeded":    true,
	"sharingRateLimitExceeded": true,
}

// classify maps err onto the shared error taxonomy.
// Authorization and context errors pass through unchanged apart from the op prefix.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	if shared.IsAuthError(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("drive: %s: %w", op, err)
	}

	var existing *APIError
	if errors.As(err, &existing) {
		return err
	}

	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return &APIError{Op: op, Message: err.Error(), Err: shared.ErrRemoteError}
	}

	apiErr := &APIError{
		Op:         op,
		StatusCode: gerr.Code,
		Message:    gerr.Message,
		RetryAfter: retryAfter(gerr.Header),
	}

	switch {
	case gerr.Code == http.StatusUnauthorized:
		apiErr.Err = shared.ErrAuthExpired
	case gerr.Code == http.StatusTooManyRequests:
		apiErr.Err = shared.ErrRateLimited
	case gerr.Code == http.StatusForbidden && isRateLimitReason(gerr):
		apiErr.Err = shared.ErrRateLimited
	case gerr.Code == http.StatusNotFound:
		apiErr.Err = shared.ErrNotFound
	default:
		apiErr.Err = shared.ErrRemoteError
	}

	return apiErr
}

func isRateLimitReason(gerr *googleapi.Error) bool {
	for _, item := range gerr.Errors {
		if rateLimitReasons[item.Reason] {
			return true
		}
	}
	return false
}

// isRetryable reports whether another attempt may succeed.
func isRetryable(err error) bool {
	if errors.Is(err, shared.ErrRateLimited) {
		return true
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) || !errors.Is(apiErr.Err, shared.ErrRemoteError) {
		return false
	}

	switch apiErr.StatusCode {
	case 0, // transport failure
		http.StatusRequestTimeout,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func retryAfter(h http.Header) time.Duration {
	if h == nil {
		return 0
	}
	ra := h.Get("Retry-After")
	if ra == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(ra); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
