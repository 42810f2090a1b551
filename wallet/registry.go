package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrNotRegistered is returned when a participant has no payout address on file.
	ErrNotRegistered = errors.New("wallet: not registered")
	// ErrInvalidAddress is returned when an empty address is supplied.
	ErrInvalidAddress = errors.New("wallet: address required")
	// ErrInvalidParticipant is returned when an empty participant id is supplied.
	ErrInvalidParticipant = errors.New("wallet: participant id required")
	// ErrNotPersisted signals that an in-memory mutation succeeded but the flush
	// to durable storage failed. The returned value is still authoritative.
	ErrNotPersisted = errors.New("wallet: mutation not persisted")
)

// Record mirrors the persisted form of a single participant wallet.
type Record struct {
	Wallet   string `json:"wallet"`
	UserInfo string `json:"user_info"`
}

// Wallet is a read-only snapshot of a participant's registered payout address.
type Wallet struct {
	ParticipantID string
	DisplayName   string
	Address       string
}

// SetResult reports the outcome of SetWallet.
type SetResult struct {
	AlreadySet bool
	Address    string
}

// Persister stores the complete registry state. Save always receives the full
// mapping and must replace whatever was stored previously.
type Persister interface {
	Load(ctx context.Context) (map[string]Record, error)
	Save(ctx context.Context, records map[string]Record) error
}

// FlushObserver is notified of every persistence attempt.
type FlushObserver interface {
	ObserveWalletFlush(err error)
}

// Registry owns the participant → payout address mapping and its persistence
// boundary. It is safe for concurrent use.
type Registry struct {
	persister Persister
	observer  FlushObserver
	logger    *slog.Logger

	mu      sync.RWMutex
	records map[string]Record
}

// Option customises a Registry.
type Option func(*Registry)

// WithLogger overrides the logger used for flush failures.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// WithFlushObserver registers a metrics hook for persistence attempts.
func WithFlushObserver(observer FlushObserver) Option {
	return func(r *Registry) { r.observer = observer }
}

// NewRegistry constructs an empty registry backed by the supplied persister.
// A nil persister keeps the registry memory-only.
func NewRegistry(persister Persister, opts ...Option) *Registry {
	reg := &Registry{
		persister: persister,
		records:   make(map[string]Record),
	}
	for _, opt := range opts {
		opt(reg)
	}
	if reg.logger == nil {
		reg.logger = slog.Default()
	}
	return reg
}

// Load replaces the in-memory state with the persisted state. It is intended
// to be called once at process start.
func (r *Registry) Load(ctx context.Context) error {
	if r.persister == nil {
		return nil
	}
	loaded, err := r.persister.Load(ctx)
	if err != nil {
		return fmt.Errorf("wallet: load registry: %w", err)
	}
	records := make(map[string]Record, len(loaded))
	for id, rec := range loaded {
		id = strings.TrimSpace(id)
		if id == "" || strings.TrimSpace(rec.Wallet) == "" {
			continue
		}
		records[id] = rec
	}
	r.mu.Lock()
	r.records = records
	r.mu.Unlock()
	return nil
}

// SetWallet registers address for participantID unless a wallet already
// exists, in which case the existing address is returned with AlreadySet.
func (r *Registry) SetWallet(ctx context.Context, participantID, address, displayName string) (SetResult, error) {
	participantID = strings.TrimSpace(participantID)
	if participantID == "" {
		return SetResult{}, ErrInvalidParticipant
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.records[participantID]; ok {
		return SetResult{AlreadySet: true, Address: existing.Wallet}, nil
	}
	address = strings.TrimSpace(address)
	if address == "" {
		return SetResult{}, ErrInvalidAddress
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = "Unknown"
	}
	r.records[participantID] = Record{Wallet: address, UserInfo: displayName}
	result := SetResult{Address: address}
	return result, r.flushLocked(ctx)
}

// ChangeWallet overwrites the address of an already registered participant.
func (r *Registry) ChangeWallet(ctx context.Context, participantID, address string) (string, error) {
	participantID = strings.TrimSpace(participantID)
	if participantID == "" {
		return "", ErrInvalidParticipant
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.records[participantID]
	if !ok {
		return "", ErrNotRegistered
	}
	address = strings.TrimSpace(address)
	if address == "" {
		return "", ErrInvalidAddress
	}
	existing.Wallet = address
	r.records[participantID] = existing
	return address, r.flushLocked(ctx)
}

// GetWallet returns the registered wallet for participantID.
func (r *Registry) GetWallet(participantID string) (Wallet, error) {
	participantID = strings.TrimSpace(participantID)
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[participantID]
	if !ok {
		return Wallet{}, ErrNotRegistered
	}
	return Wallet{ParticipantID: participantID, DisplayName: rec.UserInfo, Address: rec.Wallet}, nil
}

// ListWallets returns every registered wallet ordered by participant id.
func (r *Registry) ListWallets() []Wallet {
	r.mu.RLock()
	out := make([]Wallet, 0, len(r.records))
	for id, rec := range r.records {
		out = append(out, Wallet{ParticipantID: id, DisplayName: rec.UserInfo, Address: rec.Wallet})
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		return lessParticipant(out[i].ParticipantID, out[j].ParticipantID)
	})
	return out
}

// flushLocked persists the full state. The caller must hold r.mu so a
// concurrent ListWallets never observes a state that is ahead of the flush.
func (r *Registry) flushLocked(ctx context.Context) error {
	if r.persister == nil {
		return nil
	}
	snapshot := make(map[string]Record, len(r.records))
	for id, rec := range r.records {
		snapshot[id] = rec
	}
	err := r.persister.Save(ctx, snapshot)
	if r.observer != nil {
		r.observer.ObserveWalletFlush(err)
	}
	if err != nil {
		r.logger.Error("wallet registry flush failed", "error", err, "wallets", len(snapshot))
		return fmt.Errorf("%w: %v", ErrNotPersisted, err)
	}
	return nil
}

// lessParticipant orders numeric ids numerically and everything else lexically.
func lessParticipant(a, b string) bool {
	if isDigits(a) && isDigits(b) && len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
