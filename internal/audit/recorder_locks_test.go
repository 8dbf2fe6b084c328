package audit

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ledgerStub is an in-package append-only store so the lock map can be
// inspected without an import cycle on the memory store.
type ledgerStub struct {
	mu     sync.Mutex
	events []Event
}

func (s *ledgerStub) Append(_ context.Context, event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	event.Seq = int64(len(s.events) + 1)
	s.events = append(s.events, *event)
	return nil
}

func (s *ledgerStub) RecentByUser(_ context.Context, userID string, since time.Time) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, e := range s.events {
		if e.UserID == userID && !e.Timestamp.Before(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *ledgerStub) RecentByPatient(_ context.Context, patientID string, since time.Time) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, e := range s.events {
		if e.PatientID == patientID && !e.Timestamp.Before(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *ledgerStub) List(context.Context, ListFilter) ([]Event, error) { return nil, nil }

func (s *ledgerStub) Count(context.Context, ListFilter) (int, error) { return 0, nil }

func (s *ledgerStub) DistinctUsers(context.Context, time.Time, time.Time) (int, error) {
	return 0, nil
}

func TestUserLocksDoNotAccumulate(t *testing.T) {
	store := &ledgerStub{}
	recorder := NewRecorder(store, DefaultRuleConfig(), WithRetryBackoff(time.Millisecond))

	// A long-lived process sees an unbounded stream of distinct users. The
	// lock map must only hold users with a record in flight, not every user
	// ever seen.
	const users = 200

	var wg sync.WaitGroup
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			userID := fmt.Sprintf("doc-%03d", i)
			_, err := recorder.Record(context.Background(), RecordInput{
				EventType:    EventPatientView,
				UserID:       userID,
				UserEmail:    userID + "@clinic.example",
				UserRole:     RoleDoctor,
				ResourceType: "patient",
				ResourceID:   "P001",
				PatientID:    "P001",
				Authorized:   true,
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	recorder.mu.Lock()
	remaining := len(recorder.userLocks)
	recorder.mu.Unlock()
	assert.Zero(t, remaining)

	store.mu.Lock()
	require.Len(t, store.events, users)
	store.mu.Unlock()
}

func TestUserLockSharedAcrossConcurrentHolders(t *testing.T) {
	recorder := NewRecorder(&ledgerStub{}, DefaultRuleConfig())

	// Waiters that piled up on one user's lock keep serializing on the same
	// mutex; the entry is only dropped once the last of them releases.
	first := recorder.acquireUserLock("doc-1")
	second := make(chan *userLock)
	go func() {
		second <- recorder.acquireUserLock("doc-1")
	}()

	// The second acquire must block until the first releases.
	select {
	case <-second:
		t.Fatal("acquire returned while the lock was held")
	case <-time.After(20 * time.Millisecond):
	}

	recorder.releaseUserLock("doc-1", first)
	lock := <-second
	assert.Same(t, first, lock)

	recorder.releaseUserLock("doc-1", lock)
	recorder.mu.Lock()
	assert.Empty(t, recorder.userLocks)
	recorder.mu.Unlock()
}
