// Package memory keeps the lot dataset in-memory for development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/everylotbot/everylot/internal/everylot"
)

// Store holds lots in a mutex-guarded map. The compare-and-set in MarkPosted
// matches the durable providers, so controller behavior under racing
// invocations can be exercised without a database.
type Store struct {
	mu                 sync.RWMutex
	lots               map[int64]everylot.Lot
	requireImprovement bool
}

// Option configures the store.
type Option func(*Store)

// WithRequireImprovement makes selection skip lots without a positive
// improvement value.
func WithRequireImprovement() Option {
	return func(s *Store) {
		s.requireImprovement = true
	}
}

// NewStore creates a store seeded with the given lots.
func NewStore(lots []everylot.Lot, opts ...Option) *Store {
	s := &Store{lots: make(map[int64]everylot.Lot, len(lots))}
	for _, lot := range lots {
		s.lots[lot.ID] = lot
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetLot returns the lot with the given ID regardless of posted state.
func (s *Store) GetLot(_ context.Context, id int64) (everylot.Lot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lot, ok := s.lots[id]
	if !ok {
		return everylot.Lot{}, everylot.ErrNotFound
	}
	return lot, nil
}

// NextUnposted returns the eligible unposted lot with the smallest ID.
func (s *Store) NextUnposted(_ context.Context) (everylot.Lot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		next  everylot.Lot
		found bool
	)
	for _, lot := range s.lots {
		if lot.Posted || !s.eligible(lot) {
			continue
		}
		if !found || lot.ID < next.ID {
			next = lot
			found = true
		}
	}
	if !found {
		return everylot.Lot{}, everylot.ErrExhausted
	}
	return next, nil
}

// MarkPosted transitions the lot to posted exactly once.
func (s *Store) MarkPosted(_ context.Context, id int64, postURL string, postedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lot, ok := s.lots[id]
	if !ok {
		return everylot.ErrNotFound
	}
	if lot.Posted {
		return everylot.ErrAlreadyPosted
	}

	at := postedAt
	lot.Posted = true
	lot.PostURL = postURL
	lot.PostedAt = &at
	s.lots[id] = lot
	return nil
}

// CountUnposted reports how many eligible lots remain.
func (s *Store) CountUnposted(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, lot := range s.lots {
		if !lot.Posted && s.eligible(lot) {
			n++
		}
	}
	return n, nil
}

// ForEachLot visits every lot in ascending ID order.
func (s *Store) ForEachLot(ctx context.Context, fn func(everylot.Lot) error) error {
	s.mu.RLock()
	ids := make([]int64, 0, len(s.lots))
	for id := range s.lots {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	lots := make([]everylot.Lot, 0, len(ids))
	for _, id := range ids {
		lots = append(lots, s.lots[id])
	}
	s.mu.RUnlock()

	for _, lot := range lots {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(lot); err != nil {
			return err
		}
	}
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() error { return nil }

func (s *Store) eligible(lot everylot.Lot) bool {
	if !s.requireImprovement {
		return true
	}
	return lot.HasImprovement()
}
