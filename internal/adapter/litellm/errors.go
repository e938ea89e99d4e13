package litellm

import (
	"errors"
	"fmt"
	"net"
)

// ErrorKind classifies gateway failures so callers can decide between
// retry, degrade, and fail-fast.
type ErrorKind string

const (
	ErrTimeout         ErrorKind = "timeout"
	ErrRateLimited     ErrorKind = "rate_limited"
	ErrInvalidResponse ErrorKind = "invalid_response"
)

// GatewayError is a classified failure from the inference gateway.
type GatewayError struct {
	Kind    ErrorKind
	Status  int
	Message string
}

func (e *GatewayError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("gateway %s (status %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("gateway %s: %s", e.Kind, e.Message)
}

// KindOf returns the classification of err, or "" for non-gateway errors.
func KindOf(err error) ErrorKind {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return ""
}

// Retryable reports whether err is worth one more attempt. Timeouts and
// rate limits are transient; malformed output rarely fixes itself but a
// single retry is still cheap relative to a degraded evaluation.
func Retryable(err error) bool {
	switch KindOf(err) {
	case ErrTimeout, ErrRateLimited, ErrInvalidResponse:
		return true
	}
	return false
}

func classifyStatus(status int, body []byte) *GatewayError {
	kind := ErrInvalidResponse
	switch {
	case status == 429:
		kind = ErrRateLimited
	case status == 408 || status == 504:
		kind = ErrTimeout
	}
	return &GatewayError{Kind: kind, Status: status, Message: truncateBody(body)}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func truncateBody(body []byte) string {
	const max = 512
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
