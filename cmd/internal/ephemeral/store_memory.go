package ephemeral

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

const (
	// Opportunistic sweep kicks in once the map grows past this size.
	memSweepThreshold = 4096
)

// MemoryStore is the in-memory Store used when no database is configured
// and in tests.
//
// Expiry is lazy: an expired entry is treated as missing on every access
// and dropped when seen. A bounded sweep on write keeps never-read keys
// from accumulating.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memEntry

	// now is swappable for deterministic expiry tests.
	now func() time.Time
}

type memEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewMemoryStore constructs an in-memory Store implementation.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]memEntry),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Close closes the store (noop for in-memory).
func (s *MemoryStore) Close() error { return nil }

// SetWithTTL writes value under key, superseding any prior entry.
func (s *MemoryStore) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	if strings.TrimSpace(key) == "" || ttl <= 0 {
		return ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.entries[key] = memEntry{value: value, expiresAt: now.Add(ttl)}

	if len(s.entries) > memSweepThreshold {
		for k, e := range s.entries {
			if !e.expiresAt.After(now) {
				delete(s.entries, k)
			}
		}
	}
	return nil
}

// Get returns the live value for key or ErrNotFound.
func (s *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return "", ErrNotFound
	}
	if !e.expiresAt.After(s.now()) {
		delete(s.entries, key)
		return "", ErrNotFound
	}
	return e.value, nil
}

// Delete removes key. Missing keys are not an error.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// TTLRemaining returns the time left before key expires.
func (s *MemoryStore) TTLRemaining(ctx context.Context, key string) (time.Duration, error) {
	if strings.TrimSpace(key) == "" {
		return 0, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return 0, ErrNotFound
	}
	left := e.expiresAt.Sub(s.now())
	if left <= 0 {
		delete(s.entries, key)
		return 0, ErrNotFound
	}
	return left, nil
}

// Exists reports whether key holds a live entry.
func (s *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.Get(ctx, key)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return false, err
}
