package settings

import (
	"context"
	"strings"
	"sync"
)

// MemoryStore is a Store for dev and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	byComm map[string]Settings
}

// NewMemoryStore constructs an empty in-memory settings store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byComm: make(map[string]Settings)}
}

// Get returns the community's settings, defaults when unset.
func (s *MemoryStore) Get(ctx context.Context, communityID string) (Settings, error) {
	communityID = strings.TrimSpace(communityID)
	if communityID == "" {
		return Settings{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Settings{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if got, ok := s.byComm[communityID]; ok {
		return got, nil
	}
	return defaultsFor(communityID), nil
}

// SetChallengeEnabled flips the admission-challenge toggle.
func (s *MemoryStore) SetChallengeEnabled(ctx context.Context, communityID string, on bool) error {
	return s.update(ctx, communityID, func(st *Settings) { st.ChallengeEnabled = on })
}

// SetRestrictNewMembers flips the mute-on-admit toggle.
func (s *MemoryStore) SetRestrictNewMembers(ctx context.Context, communityID string, on bool) error {
	return s.update(ctx, communityID, func(st *Settings) { st.RestrictNewMembers = on })
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) update(ctx context.Context, communityID string, apply func(*Settings)) error {
	communityID = strings.TrimSpace(communityID)
	if communityID == "" {
		return ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.byComm[communityID]
	if !ok {
		st = defaultsFor(communityID)
	}
	apply(&st)
	s.byComm[communityID] = st
	return nil
}
