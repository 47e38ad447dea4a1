// Package gateway drives the external approval flow: accepting join
// requests through the platform API with rate-limit-aware retries, and
// producing a degraded-mode entry link when approval keeps failing.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gatekeep/cmd/internal/ephemeral"
	"gatekeep/cmd/internal/platform"

	"github.com/cenkalti/backoff/v5"
)

const (
	// Margin added on top of the platform's retry hint before the next try.
	defaultRetryMargin = 5 * time.Second

	// Attempts per approval (first try included).
	defaultMaxTries = 3

	// Backoff when the platform fails without a retry hint.
	defaultBaseInterval = 20 * time.Second

	// How long a minted entry link stays reusable.
	defaultEntryLinkTTL = time.Hour
)

// Service approves join requests and mints entry links.
type Service struct {
	log    *slog.Logger
	client platform.Client
	cache  ephemeral.Store

	retryMargin  time.Duration
	maxTries     uint
	baseInterval time.Duration
	entryLinkTTL time.Duration
}

// Option configures a Service.
type Option func(*Service) error

// WithRetryMargin sets the safety margin added to platform retry hints.
func WithRetryMargin(d time.Duration) Option {
	return func(s *Service) error {
		if d < 0 {
			return fmt.Errorf("%w: negative retry margin", ErrInvalidInput)
		}
		s.retryMargin = d
		return nil
	}
}

// WithMaxTries sets the total number of approval attempts.
func WithMaxTries(n uint) Option {
	return func(s *Service) error {
		if n == 0 {
			return fmt.Errorf("%w: zero max tries", ErrInvalidInput)
		}
		s.maxTries = n
		return nil
	}
}

// WithBaseInterval sets the first backoff interval used when the
// platform gives no retry hint.
func WithBaseInterval(d time.Duration) Option {
	return func(s *Service) error {
		if d <= 0 {
			return fmt.Errorf("%w: non-positive base interval", ErrInvalidInput)
		}
		s.baseInterval = d
		return nil
	}
}

// WithEntryLinkTTL sets how long minted entry links are cached.
func WithEntryLinkTTL(d time.Duration) Option {
	return func(s *Service) error {
		if d <= 0 {
			return fmt.Errorf("%w: non-positive entry link ttl", ErrInvalidInput)
		}
		s.entryLinkTTL = d
		return nil
	}
}

// NewService wires a gateway service over the platform client and the
// ephemeral store used as an entry-link cache.
func NewService(log *slog.Logger, client platform.Client, cache ephemeral.Store, opts ...Option) (*Service, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: nil platform client", ErrInvalidInput)
	}
	if cache == nil {
		return nil, fmt.Errorf("%w: nil cache store", ErrInvalidInput)
	}
	if log == nil {
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &Service{
		log:          log,
		client:       client,
		cache:        cache,
		retryMargin:  defaultRetryMargin,
		maxTries:     defaultMaxTries,
		baseInterval: defaultBaseInterval,
		entryLinkTTL: defaultEntryLinkTTL,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Approve accepts the pending join request for userID in communityID.
//
// Retry policy:
//   - Platform rate limits are retried after the platform's own hint
//     plus a safety margin.
//   - Other platform failures are retried on exponential backoff.
//   - Context errors and input errors are never retried.
//
// After maxTries attempts the error is reported under ErrGatewayFailure;
// callers switch to the degraded entry-link path.
func (s *Service) Approve(ctx context.Context, userID, communityID string) error {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(communityID) == "" {
		return fmt.Errorf("%w: user id and community id required", ErrInvalidInput)
	}

	attempt := 0
	op := func() (struct{}, error) {
		attempt++
		err := s.client.ApproveJoinRequest(ctx, userID, communityID)
		if err == nil {
			if attempt > 1 {
				s.log.Info("gateway.approve.recovered", "user_id", userID, "community_id", communityID, "attempt", attempt)
			}
			return struct{}{}, nil
		}

		var rle *platform.RateLimitError
		if errors.As(err, &rle) {
			wait := rle.RetryAfter + s.retryMargin
			s.log.Info("gateway.approve.rate_limited",
				"user_id", userID, "community_id", communityID,
				"attempt", attempt, "retry_after", wait)
			return struct{}{}, &backoff.RetryAfterError{Duration: wait}
		}

		if ctx.Err() != nil {
			return struct{}{}, backoff.Permanent(ctx.Err())
		}

		s.log.Info("gateway.approve.fail",
			"user_id", userID, "community_id", communityID,
			"attempt", attempt, "err", err)
		return struct{}{}, err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.baseInterval

	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(s.maxTries),
	)
	if err != nil {
		return fmt.Errorf("%w: approve join request: %v", ErrGatewayFailure, err)
	}
	return nil
}

// EntryLink returns a link that admits the user directly, bypassing the
// stuck join-request queue. Public communities get their permanent
// handle URL; private ones get a cached single-use invite.
func (s *Service) EntryLink(ctx context.Context, communityID string) (string, error) {
	if strings.TrimSpace(communityID) == "" {
		return "", fmt.Errorf("%w: community id required", ErrInvalidInput)
	}

	key := ephemeral.EntryLinkKey(communityID)
	if link, err := s.cache.Get(ctx, key); err == nil && link != "" {
		return link, nil
	} else if err != nil && !errors.Is(err, ephemeral.ErrNotFound) {
		s.log.Info("gateway.entry_link.cache_read_fail", "community_id", communityID, "err", err)
	}

	comm, err := s.client.GetCommunity(ctx, communityID)
	if err != nil {
		return "", fmt.Errorf("%w: get community: %v", ErrGatewayFailure, err)
	}

	var link string
	if !comm.Private && comm.Handle != "" {
		link = "https://t.me/" + comm.Handle
	} else {
		link, err = s.client.CreateSingleUseInvite(ctx, communityID)
		if err != nil {
			// One retry; invites are the last resort for private communities.
			link, err = s.client.CreateSingleUseInvite(ctx, communityID)
		}
		if err != nil {
			return "", fmt.Errorf("%w: create invite: %v", ErrGatewayFailure, err)
		}
	}

	if err := s.cache.SetWithTTL(ctx, key, link, s.entryLinkTTL); err != nil {
		s.log.Info("gateway.entry_link.cache_write_fail", "community_id", communityID, "err", err)
	}
	return link, nil
}
