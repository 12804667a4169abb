package state

import (
	"sync"
	"time"

	"github.com/fleetwatch/fleetwatch/internal/fleet"
)

// DefaultMaxRecent bounds the in-memory transition ring.
const DefaultMaxRecent = 200

// State is a thread-safe holder of the most recent completed cycle: the
// classified snapshot, when it was taken, and the newest transitions.
// Snapshots are immutable, so readers share them without copying.
type State struct {
	mu        sync.RWMutex
	snap      *fleet.Snapshot
	updatedAt time.Time
	cycles    uint64
	recent    []fleet.Transition // newest last
	maxRecent int

	persistFailures uint64
}

// New creates a State keeping at most maxRecent transitions in memory.
// Non-positive maxRecent selects DefaultMaxRecent.
func New(maxRecent int) *State {
	if maxRecent <= 0 {
		maxRecent = DefaultMaxRecent
	}
	return &State{maxRecent: maxRecent}
}

// Record replaces the held snapshot with the cycle completed at the given
// time and appends its transitions to the ring.
func (s *State) Record(snap *fleet.Snapshot, transitions []fleet.Transition, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap
	s.updatedAt = at
	s.cycles++
	s.recent = append(s.recent, transitions...)
	if len(s.recent) > s.maxRecent {
		s.recent = s.recent[len(s.recent)-s.maxRecent:]
	}
}

// Fleet returns the latest snapshot and when it was recorded.
// ok is false before the first completed cycle.
func (s *State) Fleet() (snap *fleet.Snapshot, at time.Time, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap, s.updatedAt, s.snap != nil
}

// Recent returns a copy of the retained transitions, oldest first.
func (s *State) Recent() []fleet.Transition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]fleet.Transition, len(s.recent))
	copy(out, s.recent)
	return out
}

// Cycles returns the number of completed cycles recorded so far.
func (s *State) Cycles() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cycles
}

// RecordPersistFailure counts one failed transition-log append. The durable
// log has a gap for that cycle; the counter lets operators spot it.
func (s *State) RecordPersistFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persistFailures++
}

// PersistFailures returns how many cycles failed to append to the
// transition log.
func (s *State) PersistFailures() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.persistFailures
}
