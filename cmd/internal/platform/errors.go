package platform

import (
	"errors"
	"fmt"
	"time"
)

// Public, stable errors for callers.
var (
	// ErrDeliveryFailed wraps any platform call that did not take effect.
	ErrDeliveryFailed = errors.New("platform delivery failed")

	// ErrRateLimited is the sentinel under RateLimitError.
	ErrRateLimited = errors.New("platform rate limited")

	ErrInvalidInput = errors.New("platform invalid input")
)

// RateLimitError carries the platform's retry hint alongside ErrRateLimited.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("platform rate limited (retry after %s)", e.RetryAfter)
}

// Unwrap lets errors.Is(err, ErrRateLimited) succeed.
func (e *RateLimitError) Unwrap() error { return ErrRateLimited }
