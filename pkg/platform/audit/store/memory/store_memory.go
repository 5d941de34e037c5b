package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	id "appeals/pkg/domain"
	audit "appeals/pkg/platform/audit"
)

// InMemoryStore keeps events and their outbox rows in process. It backs the
// in-memory deployment and tests.
type InMemoryStore struct {
	mu     sync.RWMutex
	events map[id.CaseID][]audit.Event
	outbox []audit.OutboxEntry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[id.CaseID][]audit.Event)}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = make(map[id.CaseID][]audit.Event)
	s.outbox = nil
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	entry, err := audit.NewOutboxEntry(event, time.Now())
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.CaseID] = append(s.events[event.CaseID], event)
	s.outbox = append(s.outbox, entry)
	return nil
}

// ListByCase returns the events recorded for caseID in append order.
func (s *InMemoryStore) ListByCase(_ context.Context, caseID id.CaseID) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event{}, s.events[caseID]...), nil
}

// Actions lists the actions recorded for caseID in append order.
func (s *InMemoryStore) Actions(caseID id.CaseID) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.events[caseID]))
	for _, e := range s.events[caseID] {
		out = append(out, e.Action)
	}
	return out
}

func (s *InMemoryStore) FetchPending(_ context.Context, limit int) ([]audit.OutboxEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var pending []audit.OutboxEntry
	for _, e := range s.outbox {
		if e.PublishedAt != nil {
			continue
		}
		pending = append(pending, e)
		if len(pending) == limit {
			break
		}
	}
	return pending, nil
}

func (s *InMemoryStore) MarkPublished(_ context.Context, ids []uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.outbox {
		if slices.Contains(ids, s.outbox[i].ID) {
			published := at
			s.outbox[i].PublishedAt = &published
		}
	}
	return nil
}
