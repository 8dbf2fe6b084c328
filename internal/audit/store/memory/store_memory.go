// Package memory provides the in-memory audit ledger used in development and
// tests. It honors the same append-only contract as the durable backends:
// events gain a store-assigned sequence and are never modified or removed.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"phiguard/internal/audit"
)

const defaultListLimit = 100

// Store implements audit.Store with per-user and per-patient indexes so the
// rule engine's window reads stay cheap.
type Store struct {
	mu        sync.RWMutex
	seq       int64
	events    []audit.Event
	byUser    map[string][]int
	byPatient map[string][]int
}

// NewStore creates an empty in-memory audit store.
func NewStore() *Store {
	return &Store{
		byUser:    make(map[string][]int),
		byPatient: make(map[string][]int),
	}
}

// Append assigns the next sequence and stores a copy of the event.
func (s *Store) Append(_ context.Context, event *audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	event.Seq = s.seq

	idx := len(s.events)
	s.events = append(s.events, *event)
	s.byUser[event.UserID] = append(s.byUser[event.UserID], idx)
	if event.PatientID != "" {
		s.byPatient[event.PatientID] = append(s.byPatient[event.PatientID], idx)
	}
	return nil
}

// RecentByUser returns the user's events since the cutoff, ascending.
func (s *Store) RecentByUser(_ context.Context, userID string, since time.Time) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(s.byUser[userID], since), nil
}

// RecentByPatient returns events touching the patient since the cutoff,
// ascending.
func (s *Store) RecentByPatient(_ context.Context, patientID string, since time.Time) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(s.byPatient[patientID], since), nil
}

// collect copies indexed events past the cutoff. Indexes are append-ordered,
// which matches sequence order; a final sort keeps timestamp order even when
// concurrent writers carried slightly out-of-order wall clocks.
func (s *Store) collect(indexes []int, since time.Time) []audit.Event {
	var out []audit.Event
	for _, idx := range indexes {
		if e := s.events[idx]; !e.Timestamp.Before(since) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// List returns matching events newest first.
func (s *Store) List(_ context.Context, filter audit.ListFilter) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []audit.Event
	for _, e := range s.events {
		if filter.Matches(e) {
			matched = append(matched, e)
		}
	}
	// Newest first; sequence breaks timestamp ties deterministically.
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].Timestamp.Equal(matched[j].Timestamp) {
			return matched[i].Seq > matched[j].Seq
		}
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if filter.Offset >= len(matched) {
		return nil, nil
	}
	matched = matched[filter.Offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// Count returns the number of events matching the filter.
func (s *Store) Count(_ context.Context, filter audit.ListFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, e := range s.events {
		if filter.Matches(e) {
			count++
		}
	}
	return count, nil
}

// DistinctUsers returns the number of distinct acting users in [since, until).
func (s *Store) DistinctUsers(_ context.Context, since, until time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make(map[string]bool)
	for _, e := range s.events {
		if e.Timestamp.Before(since) {
			continue
		}
		if !until.IsZero() && !e.Timestamp.Before(until) {
			continue
		}
		users[e.UserID] = true
	}
	return len(users), nil
}
