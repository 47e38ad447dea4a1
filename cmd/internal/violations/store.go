// Package violations keeps an audit trail of admission failures and
// moderation actions.
package violations

import (
	"context"
	"crypto/rand"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
)

// Observation kinds (wire/storage stable).
const (
	KindChallengeFailed   = "challenge_failed"
	KindAttemptsExhausted = "attempts_exhausted"
	KindRestrictedOnAdmit = "restricted_on_admit"
)

// Public, stable errors for callers.
var (
	ErrInvalidInput = errors.New("violations invalid input")
)

// Observation is one recorded event.
type Observation struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	CommunityID string    `json:"community_id"`
	Kind        string    `json:"kind"`
	At          time.Time `json:"at"`
}

// Store persists observations.
type Store interface {
	// Track appends one observation. The ID is assigned by the caller
	// (NewID) so retried writes stay idempotent.
	Track(ctx context.Context, obs Observation) error

	// Recent returns the newest observations for a community,
	// newest first, at most limit.
	Recent(ctx context.Context, communityID string, limit int) ([]Observation, error)

	// CountByUser returns how many observations of kind exist for the
	// user in the community.
	CountByUser(ctx context.Context, userID, communityID, kind string) (int, error)

	// Close releases resources owned by the store.
	Close() error
}

// NewID mints a time-ordered unique observation id.
func NewID(at time.Time) string {
	return ulid.MustNew(ulid.Timestamp(at.UTC()), rand.Reader).String()
}

func validate(obs Observation) error {
	if obs.ID == "" || obs.UserID == "" || obs.CommunityID == "" || obs.Kind == "" {
		return ErrInvalidInput
	}
	if obs.At.IsZero() {
		return ErrInvalidInput
	}
	return nil
}
