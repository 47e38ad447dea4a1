package app

import (
	"context"
	"errors"

	v1 "gatekeep/contracts/platform/v1"

	"gatekeep/cmd/internal/admission"
	"gatekeep/cmd/internal/moderation"
)

// eventRouter adapts the platform event stream onto the admission and
// moderation services.
//
// Expected pipeline outcomes (wrong answer, cooldown, expired session)
// are terminal per event: the admission service already answered the
// user, so they must not surface as stream-handler failures.
type eventRouter struct {
	log        Logger
	admission  *admission.Service
	moderation *moderation.Service
}

func (r *eventRouter) HandleJoinRequest(ctx context.Context, p v1.JoinRequestPayload) error {
	return r.admission.HandleJoinRequest(ctx, p.UserID, p.CommunityID)
}

func (r *eventRouter) HandleStart(ctx context.Context, p v1.StartPayload) error {
	err := r.admission.StartChallenge(ctx, p.UserID, p.EntryToken)
	if errors.Is(err, admission.ErrBadEntryToken) ||
		errors.Is(err, admission.ErrNoJoinRequest) ||
		errors.Is(err, admission.ErrCooldownActive) {
		r.log.Info("events.start.rejected", "user_id", p.UserID, "err", err)
		return nil
	}
	return err
}

func (r *eventRouter) HandleMessage(ctx context.Context, p v1.MessagePayload) error {
	err := r.admission.SubmitAnswer(ctx, p.UserID, p.Text)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, admission.ErrWrongAnswer),
		errors.Is(err, admission.ErrAttemptsExhausted),
		errors.Is(err, admission.ErrCooldownActive),
		errors.Is(err, admission.ErrExpiredSession):
		// Normal pipeline outcomes; already logged with context.
		return nil
	default:
		return err
	}
}

func (r *eventRouter) HandleMemberUpdated(ctx context.Context, p v1.MemberUpdatedPayload) error {
	return r.moderation.HandleMemberUpdated(ctx, p)
}
