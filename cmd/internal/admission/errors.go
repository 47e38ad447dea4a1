package admission

import (
	"errors"
	"fmt"
	"time"
)

// Public, stable errors for callers.
var (
	// ErrExpiredSession means no live challenge session exists for the user.
	ErrExpiredSession = errors.New("admission session expired or missing")

	// ErrWrongAnswer means the submission did not match; attempts remain.
	ErrWrongAnswer = errors.New("admission wrong answer")

	// ErrAttemptsExhausted means the submission burned the last attempt.
	ErrAttemptsExhausted = errors.New("admission attempts exhausted")

	// ErrCooldownActive is the sentinel under CooldownError.
	ErrCooldownActive = errors.New("admission cooldown active")

	// ErrNoJoinRequest means a start arrived without a pending join request.
	ErrNoJoinRequest = errors.New("admission no pending join request")

	// ErrBadEntryToken means the deep-link token failed verification.
	ErrBadEntryToken = errors.New("admission bad entry token")

	ErrInvalidInput = errors.New("admission invalid input")
)

// CooldownError carries the remaining lockout alongside ErrCooldownActive.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("admission cooldown active (%s remaining)", e.Remaining)
}

// Unwrap lets errors.Is(err, ErrCooldownActive) succeed.
func (e *CooldownError) Unwrap() error { return ErrCooldownActive }
