// Package admission runs the challenge pipeline that gates community
// join requests: issuing challenges, tracking ephemeral sessions,
// verifying answers, and handing verified users to the approval gateway.
package admission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gatekeep/cmd/internal/challenge"
	"gatekeep/cmd/internal/ephemeral"
	"gatekeep/cmd/internal/gateway"
	"gatekeep/cmd/internal/platform"
	"gatekeep/cmd/internal/settings"
	"gatekeep/cmd/internal/violations"
	"gatekeep/cmd/security/token"
)

// Hooks receives pipeline outcome notifications (metrics).
type Hooks interface {
	ChallengeIssued(kind string)
	ChallengeSolved(kind string)
	ChallengeFailed(kind string)
	ApprovalResult(result string) // "ok" | "fallback"
}

// NopHooks is the default no-op Hooks.
type NopHooks struct{}

func (NopHooks) ChallengeIssued(string) {}
func (NopHooks) ChallengeSolved(string) {}
func (NopHooks) ChallengeFailed(string) {}
func (NopHooks) ApprovalResult(string)  {}

// Service is the admission pipeline.
type Service struct {
	log  *slog.Logger
	cfg  Config
	hook Hooks

	store      ephemeral.Store
	gen        *challenge.Generator
	client     platform.Client
	gate       *gateway.Service
	settings   settings.Store
	violations violations.Store
	reminders  *ReminderScheduler

	now func() time.Time
}

// Option configures a Service.
type Option func(*Service) error

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

// WithGenerator overrides the challenge generator (tests use a seeded one).
func WithGenerator(g *challenge.Generator) Option {
	return func(s *Service) error {
		if g == nil {
			return fmt.Errorf("%w: nil generator", ErrInvalidInput)
		}
		s.gen = g
		return nil
	}
}

// NewService wires the admission pipeline.
func NewService(
	log *slog.Logger,
	cfg Config,
	store ephemeral.Store,
	client platform.Client,
	gate *gateway.Service,
	sets settings.Store,
	viols violations.Store,
	opts ...Option,
) (*Service, error) {
	if store == nil || client == nil || gate == nil || sets == nil || viols == nil {
		return nil, fmt.Errorf("%w: nil dependency", ErrInvalidInput)
	}
	if log == nil {
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &Service{
		log:        log,
		cfg:        cfg.withDefaults(),
		hook:       NopHooks{},
		store:      store,
		gen:        challenge.NewGenerator(nil),
		client:     client,
		gate:       gate,
		settings:   sets,
		violations: viols,
		reminders:  NewReminderScheduler(),
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Close stops background reminders.
func (s *Service) Close() error {
	s.reminders.Stop()
	return nil
}

// HandleJoinRequest reacts to a new join request: when the challenge is
// enabled it records the request and invites the user into the challenge
// flow; otherwise it approves immediately.
func (s *Service) HandleJoinRequest(ctx context.Context, userID, communityID string) error {
	userID, communityID = strings.TrimSpace(userID), strings.TrimSpace(communityID)
	if userID == "" || communityID == "" {
		return fmt.Errorf("%w: user id and community id required", ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	st, err := s.settings.Get(ctx, communityID)
	if err != nil {
		return fmt.Errorf("read settings: %w", err)
	}
	if !st.ChallengeEnabled {
		s.log.Info("admission.join.auto_approve", "user_id", userID, "community_id", communityID)
		return s.admit(ctx, userID, communityID)
	}

	if err := s.store.SetWithTTL(ctx, ephemeral.JoinRequestKey(userID, communityID), "1", s.cfg.JoinRequestTTL); err != nil {
		return fmt.Errorf("record join request: %w", err)
	}

	entryToken, err := token.SignEntry(communityID)
	if err != nil {
		return fmt.Errorf("mint entry token: %w", err)
	}

	// Delivery is best-effort: the user may have never messaged the bot,
	// in which case the platform refuses private delivery.
	if err := s.client.SendMessage(ctx, userID, s.inviteText(entryToken)); err != nil {
		s.log.Info("admission.join.invite_undelivered", "user_id", userID, "community_id", communityID, "err", err)
	}

	s.scheduleReminder(userID, communityID, entryToken)

	s.log.Info("admission.join.challenge_pending", "user_id", userID, "community_id", communityID)
	return nil
}

// StartChallenge reacts to the user opening the bot via a deep link: it
// verifies the entry token, generates a challenge, opens a session, and
// delivers the artifact.
func (s *Service) StartChallenge(ctx context.Context, userID, entryToken string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: user id required", ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	communityID, err := token.VerifyEntry(entryToken)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadEntryToken, err)
	}

	// A locked-out user cannot open a fresh session around the cooldown.
	if left, err := s.store.TTLRemaining(ctx, ephemeral.CooldownKey(userID)); err == nil {
		s.tellCooldown(ctx, userID, left)
		return &CooldownError{Remaining: left}
	} else if !errors.Is(err, ephemeral.ErrNotFound) {
		return fmt.Errorf("check cooldown: %w", err)
	}

	ok, err := s.store.Exists(ctx, ephemeral.JoinRequestKey(userID, communityID))
	if err != nil {
		return fmt.Errorf("check join request: %w", err)
	}
	if !ok {
		return ErrNoJoinRequest
	}

	ch, err := s.gen.Generate()
	if err != nil {
		return fmt.Errorf("generate challenge: %w", err)
	}

	now := s.now()
	sess := Session{
		ID:          newSessionID(now),
		UserID:      userID,
		CommunityID: communityID,
		Kind:        string(ch.Kind),
		Answer:      ch.Answer,
		CreatedAt:   now,
	}
	raw, err := encodeSession(sess)
	if err != nil {
		return err
	}
	// Re-starting supersedes any prior session and restarts its TTL.
	if err := s.store.SetWithTTL(ctx, ephemeral.SessionKey(userID), raw, s.cfg.SessionTTL); err != nil {
		return fmt.Errorf("open session: %w", err)
	}

	if err := s.client.SendChallenge(ctx, userID, ch.Artifact, s.challengeCaption()); err != nil {
		// The session stays open; the artifact can be re-sent on a new start.
		s.log.Info("admission.challenge.undelivered", "user_id", userID, "session_id", sess.ID, "err", err)
	}

	s.scheduleSessionReminder(sess)

	s.hook.ChallengeIssued(string(ch.Kind))
	s.log.Info("admission.challenge.issued",
		"user_id", userID, "community_id", communityID,
		"session_id", sess.ID, "kind", ch.Kind)
	return nil
}

// SubmitAnswer verifies a challenge answer.
//
// Precedence: an active cooldown is reported before any session state is
// consulted, so a locked-out user always sees the cooldown.
func (s *Service) SubmitAnswer(ctx context.Context, userID, text string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: user id required", ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if left, err := s.store.TTLRemaining(ctx, ephemeral.CooldownKey(userID)); err == nil {
		s.tellCooldown(ctx, userID, left)
		return &CooldownError{Remaining: left}
	} else if !errors.Is(err, ephemeral.ErrNotFound) {
		return fmt.Errorf("check cooldown: %w", err)
	}

	sessionKey := ephemeral.SessionKey(userID)
	raw, err := s.store.Get(ctx, sessionKey)
	if errors.Is(err, ephemeral.ErrNotFound) {
		s.tellExpired(ctx, userID)
		return ErrExpiredSession
	}
	if err != nil {
		return fmt.Errorf("read session: %w", err)
	}
	sess, err := decodeSession(raw)
	if err != nil {
		// A corrupt session is unrecoverable: drop it.
		_ = s.store.Delete(ctx, sessionKey)
		s.tellExpired(ctx, userID)
		return ErrExpiredSession
	}

	if challenge.Verify(sess.Answer, text) {
		return s.onSolved(ctx, sess)
	}
	return s.onFailed(ctx, sess)
}

// tellCooldown surfaces the remaining lockout time to the user.
func (s *Service) tellCooldown(ctx context.Context, userID string, left time.Duration) {
	if derr := s.client.SendMessage(ctx, userID,
		fmt.Sprintf("Please wait %s before trying again.", left.Round(time.Second))); derr != nil {
		s.log.Info("admission.cooldown.undelivered", "user_id", userID, "err", derr)
	}
}

// tellExpired prompts the user to restart after their session is gone.
func (s *Service) tellExpired(ctx context.Context, userID string) {
	if derr := s.client.SendMessage(ctx, userID,
		"Your session has expired. Please start over from the join request."); derr != nil {
		s.log.Info("admission.expired.undelivered", "user_id", userID, "err", derr)
	}
}

func (s *Service) onSolved(ctx context.Context, sess Session) error {
	_ = s.store.Delete(ctx, ephemeral.SessionKey(sess.UserID))
	s.reminders.Cancel(reminderKey(sess.UserID, sess.CommunityID))

	// The pass marker is written once; a pre-existing marker (duplicate
	// solve, replayed message) is left untouched so its TTL keeps running.
	markerKey := ephemeral.ApprovalKey(sess.UserID, sess.CommunityID)
	exists, err := s.store.Exists(ctx, markerKey)
	if err != nil {
		return fmt.Errorf("check pass marker: %w", err)
	}
	if !exists {
		if err := s.store.SetWithTTL(ctx, markerKey, "1", s.cfg.ApprovalTTL); err != nil {
			return fmt.Errorf("write pass marker: %w", err)
		}
	}

	s.hook.ChallengeSolved(sess.Kind)
	s.log.Info("admission.challenge.solved",
		"user_id", sess.UserID, "community_id", sess.CommunityID,
		"session_id", sess.ID, "attempts", sess.Attempts+1)

	return s.admit(ctx, sess.UserID, sess.CommunityID)
}

// admit pushes the approval through the gateway, degrading to an entry
// link when the gateway keeps failing.
func (s *Service) admit(ctx context.Context, userID, communityID string) error {
	err := s.gate.Approve(ctx, userID, communityID)
	if err == nil {
		_ = s.store.Delete(ctx, ephemeral.JoinRequestKey(userID, communityID))
		if derr := s.client.SendMessage(ctx, userID, "You're in. Welcome!"); derr != nil {
			s.log.Info("admission.welcome.undelivered", "user_id", userID, "err", derr)
		}
		s.hook.ApprovalResult("ok")
		s.log.Info("admission.approved", "user_id", userID, "community_id", communityID)
		return nil
	}

	s.log.Warn("admission.approve.degraded", "user_id", userID, "community_id", communityID, "err", err)

	link, lerr := s.gate.EntryLink(ctx, communityID)
	if lerr != nil {
		s.hook.ApprovalResult("failed")
		return fmt.Errorf("approval failed and no entry link: %w", lerr)
	}
	if derr := s.client.SendMessage(ctx, userID,
		"Approval is delayed on our side. Use this link to join directly: "+link); derr != nil {
		s.log.Info("admission.entry_link.undelivered", "user_id", userID, "err", derr)
	}
	s.hook.ApprovalResult("fallback")
	return nil
}

func (s *Service) onFailed(ctx context.Context, sess Session) error {
	sess.Attempts++
	now := s.now()

	if terr := s.violations.Track(ctx, violations.Observation{
		ID:          violations.NewID(now),
		UserID:      sess.UserID,
		CommunityID: sess.CommunityID,
		Kind:        violations.KindChallengeFailed,
		At:          now,
	}); terr != nil {
		s.log.Info("admission.violation.track_fail", "user_id", sess.UserID, "err", terr)
	}
	s.hook.ChallengeFailed(sess.Kind)

	sessionKey := ephemeral.SessionKey(sess.UserID)

	if sess.Attempts >= s.cfg.MaxAttempts {
		_ = s.store.Delete(ctx, sessionKey)
		s.reminders.Cancel(reminderKey(sess.UserID, sess.CommunityID))
		if err := s.store.SetWithTTL(ctx, ephemeral.CooldownKey(sess.UserID), "1", s.cfg.CooldownTTL); err != nil {
			return fmt.Errorf("arm cooldown: %w", err)
		}
		if terr := s.violations.Track(ctx, violations.Observation{
			ID:          violations.NewID(now),
			UserID:      sess.UserID,
			CommunityID: sess.CommunityID,
			Kind:        violations.KindAttemptsExhausted,
			At:          now,
		}); terr != nil {
			s.log.Info("admission.violation.track_fail", "user_id", sess.UserID, "err", terr)
		}
		if derr := s.client.SendMessage(ctx, sess.UserID,
			fmt.Sprintf("Out of attempts. Try again in %s.", s.cfg.CooldownTTL)); derr != nil {
			s.log.Info("admission.lockout.undelivered", "user_id", sess.UserID, "err", derr)
		}
		s.log.Info("admission.attempts.exhausted",
			"user_id", sess.UserID, "community_id", sess.CommunityID, "session_id", sess.ID)
		return ErrAttemptsExhausted
	}

	// Not exhausted: a fresh challenge supersedes the old one inside the
	// same session, and the session TTL restarts with it.
	ch, err := s.gen.Generate()
	if err != nil {
		return fmt.Errorf("generate challenge: %w", err)
	}
	sess.Kind = string(ch.Kind)
	sess.Answer = ch.Answer

	raw, err := encodeSession(sess)
	if err != nil {
		return err
	}
	if err := s.store.SetWithTTL(ctx, sessionKey, raw, s.cfg.SessionTTL); err != nil {
		return fmt.Errorf("update session: %w", err)
	}

	remaining := s.cfg.MaxAttempts - sess.Attempts
	if derr := s.client.SendChallenge(ctx, sess.UserID, ch.Artifact,
		fmt.Sprintf("Wrong answer. Here is a new one, %d attempt(s) left.", remaining)); derr != nil {
		s.log.Info("admission.retry_challenge.undelivered", "user_id", sess.UserID, "err", derr)
	}

	s.scheduleSessionReminder(sess)

	s.hook.ChallengeIssued(string(ch.Kind))
	s.log.Info("admission.challenge.failed",
		"user_id", sess.UserID, "community_id", sess.CommunityID,
		"session_id", sess.ID, "attempts", sess.Attempts, "kind", ch.Kind)
	return ErrWrongAnswer
}

// scheduleReminder nudges users who asked to join but never started the
// challenge. It re-checks state at fire time: a vanished join request or
// an existing pass marker suppresses the nudge.
func (s *Service) scheduleReminder(userID, communityID, entryToken string) {
	s.reminders.Schedule(reminderKey(userID, communityID), s.cfg.ReminderDelay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		pending, err := s.store.Exists(ctx, ephemeral.JoinRequestKey(userID, communityID))
		if err != nil || !pending {
			return
		}
		passed, err := s.store.Exists(ctx, ephemeral.ApprovalKey(userID, communityID))
		if err != nil || passed {
			return
		}
		if derr := s.client.SendMessage(ctx, userID, s.inviteText(entryToken)); derr != nil {
			s.log.Info("admission.reminder.undelivered", "user_id", userID, "err", derr)
			return
		}
		s.log.Info("admission.reminder.sent", "user_id", userID, "community_id", communityID)
	})
}

// scheduleSessionReminder nudges users with an open challenge they have
// gone quiet on. It shares a key with the join reminder, so an opened
// session supersedes the join-level nudge. At fire time it re-reads the
// session and no-ops when the session is gone or was superseded.
func (s *Service) scheduleSessionReminder(sess Session) {
	s.reminders.Schedule(reminderKey(sess.UserID, sess.CommunityID), s.cfg.ReminderDelay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		raw, err := s.store.Get(ctx, ephemeral.SessionKey(sess.UserID))
		if err != nil {
			return
		}
		cur, err := decodeSession(raw)
		if err != nil || cur.ID != sess.ID || cur.CommunityID != sess.CommunityID {
			return
		}
		left, err := s.store.TTLRemaining(ctx, ephemeral.SessionKey(sess.UserID))
		if err != nil {
			return
		}
		if derr := s.client.SendMessage(ctx, sess.UserID,
			fmt.Sprintf("Still there? Your challenge expires in %s.", left.Round(time.Second))); derr != nil {
			s.log.Info("admission.reminder.undelivered", "user_id", sess.UserID, "err", derr)
			return
		}
		s.log.Info("admission.reminder.sent", "user_id", sess.UserID, "community_id", sess.CommunityID)
	})
}

func reminderKey(userID, communityID string) string {
	return userID + "|" + communityID
}

func (s *Service) inviteText(entryToken string) string {
	link := entryToken
	if s.cfg.BotHandle != "" {
		link = "https://t.me/" + s.cfg.BotHandle + "?start=" + entryToken
	}
	return "To finish joining, solve a quick challenge: " + link
}

func (s *Service) challengeCaption() string {
	return fmt.Sprintf("Type the answer shown in the image. You have %s and %d attempts.",
		s.cfg.SessionTTL, s.cfg.MaxAttempts)
}
