package ephemeral

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newClockedStore() (*MemoryStore, *time.Time) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	st := NewMemoryStore(WithClock(func() time.Time { return now }))
	return st, &now
}

func TestMemoryStore_SetGetDelete(t *testing.T) {
	st, _ := newClockedStore()
	ctx := context.Background()

	if err := st.SetWithTTL(ctx, SessionKey("u1"), "v1", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, err := st.Get(ctx, SessionKey("u1"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "v1" {
		t.Fatalf("get: want v1 got %q", got)
	}

	ok, err := st.Exists(ctx, SessionKey("u1"))
	if err != nil || !ok {
		t.Fatalf("exists: ok=%v err=%v", ok, err)
	}

	if err := st.Delete(ctx, SessionKey("u1")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := st.Get(ctx, SessionKey("u1")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get after delete: want ErrNotFound got %v", err)
	}

	// Deleting a missing key is not an error.
	if err := st.Delete(ctx, SessionKey("u1")); err != nil {
		t.Fatalf("delete missing: %v", err)
	}
}

func TestMemoryStore_TTLExpiry(t *testing.T) {
	st, now := newClockedStore()
	ctx := context.Background()

	if err := st.SetWithTTL(ctx, CooldownKey("u1"), "1", 60*time.Second); err != nil {
		t.Fatalf("set: %v", err)
	}

	left, err := st.TTLRemaining(ctx, CooldownKey("u1"))
	if err != nil {
		t.Fatalf("ttl: %v", err)
	}
	if left != 60*time.Second {
		t.Fatalf("ttl: want 60s got %s", left)
	}

	*now = now.Add(59 * time.Second)
	ok, err := st.Exists(ctx, CooldownKey("u1"))
	if err != nil || !ok {
		t.Fatalf("exists before expiry: ok=%v err=%v", ok, err)
	}

	*now = now.Add(2 * time.Second)
	ok, err = st.Exists(ctx, CooldownKey("u1"))
	if err != nil || ok {
		t.Fatalf("exists after expiry: ok=%v err=%v", ok, err)
	}
	if _, err := st.TTLRemaining(ctx, CooldownKey("u1")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("ttl after expiry: want ErrNotFound got %v", err)
	}
}

func TestMemoryStore_SetSupersedesTTL(t *testing.T) {
	st, now := newClockedStore()
	ctx := context.Background()

	if err := st.SetWithTTL(ctx, SessionKey("u1"), "old", 10*time.Second); err != nil {
		t.Fatalf("set: %v", err)
	}

	*now = now.Add(9 * time.Second)
	if err := st.SetWithTTL(ctx, SessionKey("u1"), "new", 10*time.Second); err != nil {
		t.Fatalf("re-set: %v", err)
	}

	// Old TTL would have expired here; the rewrite restarted it.
	*now = now.Add(5 * time.Second)
	got, err := st.Get(ctx, SessionKey("u1"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "new" {
		t.Fatalf("get: want new got %q", got)
	}
}

func TestMemoryStore_InvalidInput(t *testing.T) {
	st, _ := newClockedStore()
	ctx := context.Background()

	if err := st.SetWithTTL(ctx, "", "v", time.Second); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("empty key: want ErrInvalidInput got %v", err)
	}
	if err := st.SetWithTTL(ctx, "k", "v", 0); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("zero ttl: want ErrInvalidInput got %v", err)
	}
}

func TestKeyBuilders(t *testing.T) {
	if got := SessionKey("42"); got != "session:42" {
		t.Fatalf("session key: %q", got)
	}
	if got := ApprovalKey("42", "-100"); got != "approved:42:-100" {
		t.Fatalf("approval key: %q", got)
	}
	if got := JoinRequestKey("42", "-100"); got != "join_request:42:-100" {
		t.Fatalf("join request key: %q", got)
	}
}
