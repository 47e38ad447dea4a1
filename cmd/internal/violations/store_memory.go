package violations

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is a Store for dev and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	byID map[string]Observation
}

// NewMemoryStore constructs an empty in-memory violations store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]Observation)}
}

// Track appends one observation. Re-tracking the same ID is a no-op.
func (s *MemoryStore) Track(ctx context.Context, obs Observation) error {
	if err := validate(obs); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[obs.ID]; ok {
		return nil
	}
	s.byID[obs.ID] = obs
	return nil
}

// Recent returns the newest observations for a community, newest first.
func (s *MemoryStore) Recent(ctx context.Context, communityID string, limit int) ([]Observation, error) {
	communityID = strings.TrimSpace(communityID)
	if communityID == "" || limit <= 0 {
		return nil, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Observation, 0, limit)
	for _, obs := range s.byID {
		if obs.CommunityID == communityID {
			out = append(out, obs)
		}
	}
	// ULIDs sort lexicographically by time.
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CountByUser returns how many observations of kind exist for the user.
func (s *MemoryStore) CountByUser(ctx context.Context, userID, communityID, kind string) (int, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(communityID) == "" || strings.TrimSpace(kind) == "" {
		return 0, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, obs := range s.byID {
		if obs.UserID == userID && obs.CommunityID == communityID && obs.Kind == kind {
			n++
		}
	}
	return n, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }
