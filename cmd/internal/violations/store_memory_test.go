package violations

import (
	"context"
	"errors"
	"testing"
	"time"
)

func obsAt(t *testing.T, user, comm, kind string, at time.Time) Observation {
	t.Helper()
	return Observation{
		ID:          NewID(at),
		UserID:      user,
		CommunityID: comm,
		Kind:        kind,
		At:          at,
	}
}

func TestMemoryStore_TrackAndCount(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		if err := s.Track(ctx, obsAt(t, "u1", "c1", KindChallengeFailed, base.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatalf("track: %v", err)
		}
	}
	if err := s.Track(ctx, obsAt(t, "u1", "c1", KindAttemptsExhausted, base.Add(5*time.Second))); err != nil {
		t.Fatalf("track: %v", err)
	}
	if err := s.Track(ctx, obsAt(t, "u2", "c1", KindChallengeFailed, base)); err != nil {
		t.Fatalf("track: %v", err)
	}

	n, err := s.CountByUser(ctx, "u1", "c1", KindChallengeFailed)
	if err != nil || n != 3 {
		t.Fatalf("CountByUser = %d, %v; want 3", n, err)
	}
	n, err = s.CountByUser(ctx, "u1", "c1", KindRestrictedOnAdmit)
	if err != nil || n != 0 {
		t.Fatalf("CountByUser = %d, %v; want 0", n, err)
	}
}

func TestMemoryStore_TrackIdempotentOnID(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	obs := obsAt(t, "u1", "c1", KindRestrictedOnAdmit, time.Now().UTC())
	if err := s.Track(ctx, obs); err != nil {
		t.Fatalf("track: %v", err)
	}
	if err := s.Track(ctx, obs); err != nil {
		t.Fatalf("re-track: %v", err)
	}

	n, err := s.CountByUser(ctx, "u1", "c1", KindRestrictedOnAdmit)
	if err != nil || n != 1 {
		t.Fatalf("CountByUser = %d, %v; want 1", n, err)
	}
}

func TestMemoryStore_RecentNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var ids []string
	for i := 0; i < 5; i++ {
		obs := obsAt(t, "u1", "c1", KindChallengeFailed, base.Add(time.Duration(i)*time.Minute))
		ids = append(ids, obs.ID)
		if err := s.Track(ctx, obs); err != nil {
			t.Fatalf("track: %v", err)
		}
	}

	got, err := s.Recent(ctx, "c1", 3)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].ID != ids[4] || got[2].ID != ids[2] {
		t.Fatalf("ordering wrong: %+v", got)
	}
}

func TestMemoryStore_Validation(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if err := s.Track(ctx, Observation{}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := s.Recent(ctx, "", 10); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := s.CountByUser(ctx, "u1", "c1", ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
