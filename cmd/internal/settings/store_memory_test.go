package settings

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryStore_DefaultsForUnknownCommunity(t *testing.T) {
	s := NewMemoryStore()

	got, err := s.Get(context.Background(), "c1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ChallengeEnabled != DefaultChallengeEnabled {
		t.Fatalf("ChallengeEnabled = %v, want default %v", got.ChallengeEnabled, DefaultChallengeEnabled)
	}
	if got.RestrictNewMembers != DefaultRestrictNewMembers {
		t.Fatalf("RestrictNewMembers = %v, want default %v", got.RestrictNewMembers, DefaultRestrictNewMembers)
	}
}

func TestMemoryStore_TogglesAreIndependent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if err := s.SetRestrictNewMembers(ctx, "c1", true); err != nil {
		t.Fatalf("SetRestrictNewMembers: %v", err)
	}
	got, err := s.Get(ctx, "c1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.RestrictNewMembers {
		t.Fatal("RestrictNewMembers should be on")
	}
	if got.ChallengeEnabled != DefaultChallengeEnabled {
		t.Fatal("ChallengeEnabled should keep its default")
	}

	if err := s.SetChallengeEnabled(ctx, "c1", false); err != nil {
		t.Fatalf("SetChallengeEnabled: %v", err)
	}
	got, _ = s.Get(ctx, "c1")
	if got.ChallengeEnabled {
		t.Fatal("ChallengeEnabled should be off")
	}
	if !got.RestrictNewMembers {
		t.Fatal("RestrictNewMembers must survive the other toggle")
	}

	// Another community stays untouched.
	other, _ := s.Get(ctx, "c2")
	if other.RestrictNewMembers || !other.ChallengeEnabled {
		t.Fatalf("c2 settings leaked: %+v", other)
	}
}

func TestMemoryStore_InvalidInput(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.Get(context.Background(), "  "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if err := s.SetChallengeEnabled(context.Background(), "", true); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
