package dedupe

import (
	"context"
	"encoding/hex"
	"log/slog"
	"strings"
	"sync"
	"time"

	"lukechampine.com/blake3"
)

// Key fingerprints a (participant, delivery id) pair.
type Key [32]byte

// NewKey hashes the participant and delivery id.
func NewKey(participantID, deliveryID string) Key {
	return Key(blake3.Sum256([]byte(participantID + "\x00" + deliveryID)))
}

// String returns the hex form of the key.
func (k Key) String() string { return hex.EncodeToString(k[:]) }

// Store remembers when each key was last observed.
type Store interface {
	// Mark records key as observed at the given time and returns the previous
	// observation, if any.
	Mark(ctx context.Context, key Key, at time.Time) (previous time.Time, seen bool, err error)
	// Prune forgets keys last observed before cutoff.
	Prune(ctx context.Context, cutoff time.Time) error
	Close() error
}

// Guard suppresses repeated deliveries of the same event within a window.
type Guard struct {
	store  Store
	window time.Duration
	clock  func() time.Time
	logger *slog.Logger

	mu        sync.Mutex
	lastPrune time.Time
}

// GuardOption customises a guard.
type GuardOption func(*Guard)

// WithClock overrides the guard clock.
func WithClock(clock func() time.Time) GuardOption {
	return func(g *Guard) {
		if clock != nil {
			g.clock = clock
		}
	}
}

// WithLogger overrides the guard logger.
func WithLogger(logger *slog.Logger) GuardOption {
	return func(g *Guard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewGuard wraps store with a suppression window.
func NewGuard(store Store, window time.Duration, opts ...GuardOption) *Guard {
	if store == nil {
		store = NewMemoryStore()
	}
	if window <= 0 {
		window = 10 * time.Minute
	}
	g := &Guard{store: store, window: window, clock: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// Duplicate reports whether the delivery was already seen inside the window.
// Events without a delivery id are never considered duplicates.
func (g *Guard) Duplicate(ctx context.Context, participantID, deliveryID string) (bool, error) {
	deliveryID = strings.TrimSpace(deliveryID)
	if deliveryID == "" {
		return false, nil
	}
	now := g.clock().UTC()
	g.maybePrune(ctx, now)
	previous, seen, err := g.store.Mark(ctx, NewKey(participantID, deliveryID), now)
	if err != nil {
		return false, err
	}
	return seen && now.Sub(previous) < g.window, nil
}

func (g *Guard) maybePrune(ctx context.Context, now time.Time) {
	g.mu.Lock()
	due := now.Sub(g.lastPrune) >= g.window
	if due {
		g.lastPrune = now
	}
	g.mu.Unlock()
	if !due {
		return
	}
	if err := g.store.Prune(ctx, now.Add(-g.window)); err != nil {
		g.logger.Warn("dedupe prune failed", slog.Any("error", err))
	}
}

// Close releases the underlying store.
func (g *Guard) Close() error { return g.store.Close() }

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu   sync.Mutex
	seen map[Key]time.Time
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{seen: make(map[Key]time.Time)}
}

func (m *MemoryStore) Mark(_ context.Context, key Key, at time.Time) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	previous, ok := m.seen[key]
	m.seen[key] = at
	return previous, ok, nil
}

func (m *MemoryStore) Prune(_ context.Context, cutoff time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, at := range m.seen {
		if at.Before(cutoff) {
			delete(m.seen, key)
		}
	}
	return nil
}

func (m *MemoryStore) Close() error { return nil }

// Len reports how many keys are held.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.seen)
}
