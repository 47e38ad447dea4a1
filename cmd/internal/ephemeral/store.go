// Package ephemeral provides the TTL key-value store that holds all
// transient admission state: challenge sessions, cooldown markers,
// approval markers, and join-request records.
//
// There is no cleanup pass anywhere in the module; correctness of expiry
// relies entirely on the Store TTL guarantee.
package ephemeral

import (
	"context"
	"fmt"
	"time"
)

// Store abstracts TTL-bounded key-value persistence.
//
// Requirements:
//   - Per-key operations are atomic; concurrent writers to the same key are
//     serialized (last write wins).
//   - SetWithTTL always supersedes a prior value and its TTL.
//   - Expired keys behave exactly like missing keys on every operation.
type Store interface {
	// SetWithTTL writes value under key, replacing any prior entry. The
	// entry expires ttl after the write.
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error

	// Get returns the value for key, or ErrNotFound if the key is missing
	// or expired.
	Get(ctx context.Context, key string) (string, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// TTLRemaining returns the time left before key expires, or 0 with
	// ErrNotFound if the key is missing or expired.
	TTLRemaining(ctx context.Context, key string) (time.Duration, error)

	// Exists reports whether key holds a live entry.
	Exists(ctx context.Context, key string) (bool, error)

	Close() error
}

// Key builders. Keeping the keyspace in one place is the external
// collaborator contract: all admission state is addressable by these keys.

// SessionKey addresses the live challenge session for a user.
func SessionKey(userID string) string {
	return fmt.Sprintf("session:%s", userID)
}

// CooldownKey addresses the post-exhaustion cooldown marker for a user.
func CooldownKey(userID string) string {
	return fmt.Sprintf("cooldown:%s", userID)
}

// ApprovalKey addresses the one-time approval marker for a (user, community)
// pair.
func ApprovalKey(userID, communityID string) string {
	return fmt.Sprintf("approved:%s:%s", userID, communityID)
}

// JoinRequestKey addresses the pending join-request record for a
// (user, community) pair.
func JoinRequestKey(userID, communityID string) string {
	return fmt.Sprintf("join_request:%s:%s", userID, communityID)
}

// EntryLinkKey addresses the cached entry link for a community.
func EntryLinkKey(communityID string) string {
	return fmt.Sprintf("entry_link:%s", communityID)
}
