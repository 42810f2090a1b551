package battle

import (
	"fmt"
	"sync"
	"time"

	"musicbattle/settlement"
)

// Entry is one side of a battle.
type Entry struct {
	Title   string
	Artist  string
	Creator string
}

// Label renders the entry as shown on vote buttons.
func (e Entry) Label() string {
	if e.Artist == "" {
		return e.Title
	}
	return e.Title + " - " + e.Artist
}

// Session is the immutable record of a battle this process created.
type Session struct {
	ID        settlement.BattleID
	Genre     string
	TrackA    Entry
	TrackB    Entry
	Amount    settlement.Amount
	CreatedBy string
	CreatedAt time.Time
}

// Entry returns the entry for track 1 or 2.
func (s Session) Entry(track int) (Entry, bool) {
	switch track {
	case 1:
		return s.TrackA, true
	case 2:
		return s.TrackB, true
	}
	return Entry{}, false
}

// Store keeps battle sessions in memory for the life of the process.
// Sessions are never mutated or removed once stored.
type Store struct {
	mu       sync.RWMutex
	sessions map[settlement.BattleID]Session
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{sessions: make(map[settlement.BattleID]Session)}
}

// Put stores a new session; battle ids are unique.
func (s *Store) Put(session Session) error {
	if session.ID.IsZero() {
		return fmt.Errorf("%w: battle id required", ErrValidation)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[session.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateBattle, session.ID)
	}
	s.sessions[session.ID] = session
	return nil
}

// Get returns the session for id.
func (s *Store) Get(id settlement.BattleID) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	return session, ok
}

// Len reports how many sessions are held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
