// Package moderation decides what happens to users the moment they
// become full members: fresh arrivals who never passed the admission
// challenge get muted for a long horizon.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	v1 "gatekeep/contracts/platform/v1"

	"gatekeep/cmd/internal/ephemeral"
	"gatekeep/cmd/internal/platform"
	"gatekeep/cmd/internal/settings"
	"gatekeep/cmd/internal/violations"
)

// DefaultRestriction is the mute horizon applied to unverified arrivals.
const DefaultRestriction = 3660 * 24 * time.Hour

// ErrInvalidInput is returned for malformed member updates.
var ErrInvalidInput = errors.New("moderation invalid input")

// Decide is the pure admission judgment.
//
// A user is restricted only when all hold:
//   - the community has the mute-on-admit toggle on,
//   - the transition is a fresh arrival (absent/removed -> active),
//   - no pass marker exists for the user.
//
// Member updates are delivered at least once; because the decision reads
// only current state, replays reach the same verdict.
func Decide(st settings.Settings, previous, current v1.MemberState, passed bool) bool {
	if !st.RestrictNewMembers {
		return false
	}
	if current != v1.MemberStateActive {
		return false
	}
	if previous != v1.MemberStateAbsent && previous != v1.MemberStateRemoved {
		return false
	}
	return !passed
}

// Hooks receives judgment outcomes (metrics).
type Hooks interface {
	Restriction(result string) // "applied" | "suppressed"
}

// NopHooks is the default no-op Hooks.
type NopHooks struct{}

func (NopHooks) Restriction(string) {}

// Service applies Decide against live platform state.
type Service struct {
	log  *slog.Logger
	hook Hooks

	client     platform.Client
	store      ephemeral.Store
	settings   settings.Store
	violations violations.Store

	restriction time.Duration
	now         func() time.Time
}

// Option configures a Service.
type Option func(*Service) error

// WithRestriction overrides the mute horizon.
func WithRestriction(d time.Duration) Option {
	return func(s *Service) error {
		if d <= 0 {
			return fmt.Errorf("%w: non-positive restriction", ErrInvalidInput)
		}
		s.restriction = d
		return nil
	}
}

// WithHooks installs outcome hooks.
func WithHooks(h Hooks) Option {
	return func(s *Service) error {
		if h == nil {
			return fmt.Errorf("%w: nil hooks", ErrInvalidInput)
		}
		s.hook = h
		return nil
	}
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Service) error {
		if now == nil {
			return fmt.Errorf("%w: nil clock", ErrInvalidInput)
		}
		s.now = now
		return nil
	}
}

// NewService wires the moderation judge.
func NewService(
	log *slog.Logger,
	client platform.Client,
	store ephemeral.Store,
	sets settings.Store,
	viols violations.Store,
	opts ...Option,
) (*Service, error) {
	if client == nil || store == nil || sets == nil || viols == nil {
		return nil, fmt.Errorf("%w: nil dependency", ErrInvalidInput)
	}
	if log == nil {
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &Service{
		log:         log,
		hook:        NopHooks{},
		client:      client,
		store:       store,
		settings:    sets,
		violations:  viols,
		restriction: DefaultRestriction,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// HandleMemberUpdated judges one membership transition.
func (s *Service) HandleMemberUpdated(ctx context.Context, p v1.MemberUpdatedPayload) error {
	if strings.TrimSpace(p.UserID) == "" || strings.TrimSpace(p.CommunityID) == "" {
		return fmt.Errorf("%w: user id and community id required", ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	st, err := s.settings.Get(ctx, p.CommunityID)
	if err != nil {
		return fmt.Errorf("read settings: %w", err)
	}

	passed, err := s.store.Exists(ctx, ephemeral.ApprovalKey(p.UserID, p.CommunityID))
	if err != nil {
		return fmt.Errorf("check pass marker: %w", err)
	}

	if !Decide(st, p.Previous, p.Current, passed) {
		s.hook.Restriction("suppressed")
		s.log.Debug("moderation.restriction.suppressed",
			"user_id", p.UserID, "community_id", p.CommunityID,
			"previous", p.Previous, "current", p.Current, "passed", passed)
		return nil
	}

	if err := s.client.RestrictMember(ctx, p.UserID, p.CommunityID, s.restriction); err != nil {
		return fmt.Errorf("restrict member: %w", err)
	}

	now := s.now()
	if terr := s.violations.Track(ctx, violations.Observation{
		ID:          violations.NewID(now),
		UserID:      p.UserID,
		CommunityID: p.CommunityID,
		Kind:        violations.KindRestrictedOnAdmit,
		At:          now,
	}); terr != nil {
		s.log.Info("moderation.violation.track_fail", "user_id", p.UserID, "err", terr)
	}

	s.hook.Restriction("applied")
	s.log.Info("moderation.restriction.applied",
		"user_id", p.UserID, "community_id", p.CommunityID, "duration", s.restriction)
	return nil
}
