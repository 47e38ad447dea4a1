// Package platform talks to the hosting community platform: outbound
// API calls (messages, approvals, invites, restrictions) and the inbound
// event stream.
package platform

import (
	"context"
	"time"
)

// Community describes the target community as the platform reports it.
type Community struct {
	ID      string
	Title   string
	Handle  string // public handle; empty for private communities
	Private bool
}

// Client is the outbound surface of the platform API.
//
// Implementations return RateLimitError when the platform pushes back
// with a retry hint, and wrap everything else under ErrDeliveryFailed.
type Client interface {
	// SendMessage delivers a plain text message to a user's private channel.
	SendMessage(ctx context.Context, userID, text string) error

	// SendChallenge delivers a challenge artifact (PNG bytes) with a caption.
	SendChallenge(ctx context.Context, userID string, artifact []byte, caption string) error

	// ApproveJoinRequest accepts a pending join request.
	ApproveJoinRequest(ctx context.Context, userID, communityID string) error

	// DeclineJoinRequest rejects a pending join request.
	DeclineJoinRequest(ctx context.Context, userID, communityID string) error

	// CreateSingleUseInvite mints a one-member invite link that admits
	// directly, bypassing the join-request queue.
	CreateSingleUseInvite(ctx context.Context, communityID string) (string, error)

	// RestrictMember mutes a member for the given duration.
	RestrictMember(ctx context.Context, userID, communityID string, d time.Duration) error

	// GetCommunity fetches community metadata (handle, privacy).
	GetCommunity(ctx context.Context, communityID string) (Community, error)
}
