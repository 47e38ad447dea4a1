// Package settings stores per-community moderation toggles.
package settings

import (
	"context"
	"errors"
)

// Defaults applied when a community has never been configured.
const (
	DefaultChallengeEnabled   = true
	DefaultRestrictNewMembers = false
)

// ErrInvalidInput is returned for blank community ids.
var ErrInvalidInput = errors.New("settings invalid input")

// Settings is one community's toggle set.
type Settings struct {
	CommunityID        string
	ChallengeEnabled   bool
	RestrictNewMembers bool
}

// Store persists per-community settings.
//
// Reads never fail on unknown communities; they return the defaults.
type Store interface {
	// Get returns the community's settings, defaults when unset.
	Get(ctx context.Context, communityID string) (Settings, error)

	// SetChallengeEnabled flips the admission-challenge toggle.
	SetChallengeEnabled(ctx context.Context, communityID string, on bool) error

	// SetRestrictNewMembers flips the mute-on-admit toggle.
	SetRestrictNewMembers(ctx context.Context, communityID string, on bool) error

	// Close releases resources owned by the store.
	Close() error
}

func defaultsFor(communityID string) Settings {
	return Settings{
		CommunityID:        communityID,
		ChallengeEnabled:   DefaultChallengeEnabled,
		RestrictNewMembers: DefaultRestrictNewMembers,
	}
}
