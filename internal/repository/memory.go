package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pixelproof/pixelproof/internal/domain"
)

// Memory implements Store with mutex-guarded maps. Used in development and
// tests; semantics match the Postgres store, including the quota ledger's
// exactly-max-succeed guarantee.
type Memory struct {
	mu            sync.Mutex
	subscriptions map[string]*domain.SubscriptionRecord // by identity
	counters      map[string]*domain.QuotaCounter       // by identity
	events        map[string]*domain.EventLogEntry      // by event id
	orphans       map[string]*domain.OrphanEvent        // by subscription id
	comparisons   []domain.Comparison
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		subscriptions: make(map[string]*domain.SubscriptionRecord),
		counters:      make(map[string]*domain.QuotaCounter),
		events:        make(map[string]*domain.EventLogEntry),
		orphans:       make(map[string]*domain.OrphanEvent),
	}
}

var _ Store = (*Memory)(nil)

// =============================================================================
// SubscriptionStore
// =============================================================================

func (s *Memory) Get(_ context.Context, identity string) (*domain.SubscriptionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.subscriptions[identity]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (s *Memory) GetByCustomerID(_ context.Context, customerID string) (*domain.SubscriptionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.subscriptions {
		if rec.CustomerID == customerID {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Memory) LinkCustomer(_ context.Context, identity, customerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.subscriptions[identity]
	if !ok {
		rec = &domain.SubscriptionRecord{
			Identity: identity,
			Status:   domain.SubscriptionStatusNone,
		}
		s.subscriptions[identity] = rec
	}
	rec.CustomerID = customerID
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Memory) Upsert(_ context.Context, rec *domain.SubscriptionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	cp.UpdatedAt = time.Now().UTC()
	s.subscriptions[rec.Identity] = &cp
	return nil
}

// =============================================================================
// QuotaStore
// =============================================================================

func (s *Memory) ConsumeIfUnder(_ context.Context, identity, day string, max int) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	used := s.counters[identity].UsedToday(day)
	if used >= max {
		return used, false, nil
	}

	s.counters[identity] = &domain.QuotaCounter{
		Identity:  identity,
		Day:       day,
		Count:     used + 1,
		Max:       max,
		UpdatedAt: time.Now().UTC(),
	}
	return used + 1, true, nil
}

func (s *Memory) Peek(_ context.Context, identity string) (*domain.QuotaCounter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.counters[identity]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

// =============================================================================
// EventStore
// =============================================================================

func (s *Memory) LogEvent(_ context.Context, e *domain.EventLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	if cp.ReceivedAt.IsZero() {
		cp.ReceivedAt = time.Now().UTC()
	}
	s.events[e.EventID] = &cp
	return nil
}

func (s *Memory) HasEvent(_ context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.events[eventID]
	return ok, nil
}

func (s *Memory) ParkOrphan(_ context.Context, o *domain.OrphanEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *o
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.orphans[o.SubscriptionID] = &cp
	return nil
}

// =============================================================================
// ComparisonStore
// =============================================================================

func (s *Memory) Create(_ context.Context, c *domain.Comparison) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.comparisons = append(s.comparisons, *c)
	return nil
}

func (s *Memory) GetComparison(_ context.Context, id uuid.UUID) (*domain.Comparison, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.comparisons {
		if c.ID == id {
			cp := c
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Memory) DeleteComparison(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.comparisons {
		if c.ID == id {
			s.comparisons = append(s.comparisons[:i], s.comparisons[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *Memory) ListRecent(_ context.Context, identity string, limit int) ([]domain.Comparison, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Comparison
	for _, c := range s.comparisons {
		if c.Identity == identity {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// =============================================================================
// Test helpers
// =============================================================================

// EventCount returns the number of distinct logged events.
func (s *Memory) EventCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// OrphanCount returns the number of parked orphan events.
func (s *Memory) OrphanCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orphans)
}

// Orphan returns the parked orphan for a subscription id, or nil.
func (s *Memory) Orphan(subscriptionID string) *domain.OrphanEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orphans[subscriptionID]
	if !ok {
		return nil
	}
	cp := *o
	return &cp
}
