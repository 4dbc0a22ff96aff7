package monitor

import (
	"sync"

	"arbwatch/internal/domain"
)

type Phase int

const (
	PhaseWaiting Phase = iota // one or both books incomplete
	PhaseActive               // both books complete at least once; never goes back
)

func (p Phase) String() string {
	if p == PhaseActive {
		return "active"
	}
	return "waiting"
}

// Store holds the latest top of book of both markets.
// Each slot has a single writer; Snapshot gives readers a consistent copy.
type Store struct {
	mu     sync.RWMutex
	st     domain.MarketState
	active bool
}

func NewStore() *Store {
	return &Store{}
}

// Update merges book into slot. Sides with a non-positive or non-finite
// level are discarded first. It returns true on the update that first makes
// both books complete.
func (s *Store) Update(slot domain.Slot, book domain.TopOfBook) bool {
	book, _ = book.DropInvalid()

	s.mu.Lock()
	defer s.mu.Unlock()

	switch slot {
	case domain.SlotPrimary:
		s.st.Primary = s.st.Primary.Merge(book)
	case domain.SlotSecondary:
		s.st.Secondary = s.st.Secondary.Merge(book)
	default:
		return false
	}

	if !s.active && s.st.Complete() {
		s.active = true
		return true
	}
	return false
}

// Snapshot returns a copy of both slots taken under one lock.
func (s *Store) Snapshot() domain.MarketState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st
}

func (s *Store) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.active {
		return PhaseActive
	}
	return PhaseWaiting
}
