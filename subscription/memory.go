package subscription

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store for tests and local development. A single
// write lock held for the whole transaction serializes writers, and every
// transaction works on a staged copy that replaces the live maps only when
// the transaction function returns nil, so partial writes are never visible.
type MemoryStore struct {
	mu     sync.RWMutex
	subs   map[uuid.UUID]*Subscription
	params map[uuid.UUID][]Parameter
	usages map[uuid.UUID][]MeterUsage
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		subs:   make(map[uuid.UUID]*Subscription),
		params: make(map[uuid.UUID][]Parameter),
		usages: make(map[uuid.UUID][]MeterUsage),
	}
}

var _ Store = (*MemoryStore)(nil)

func cloneSubscription(sub *Subscription) *Subscription {
	c := *sub
	c.InputParameters = slices.Clone(sub.InputParameters)
	if sub.OperationID != nil {
		id := *sub.OperationID
		c.OperationID = &id
	}
	if sub.AgentID != nil {
		id := *sub.AgentID
		c.AgentID = &id
	}
	if sub.UpdatedAt != nil {
		t := *sub.UpdatedAt
		c.UpdatedAt = &t
	}
	if sub.ActivatedAt != nil {
		t := *sub.ActivatedAt
		c.ActivatedAt = &t
	}
	return &c
}

func cloneUsages(usages []MeterUsage) []MeterUsage {
	out := make([]MeterUsage, len(usages))
	for i, u := range usages {
		out[i] = u
		if u.UnsubscribedAt != nil {
			t := *u.UnsubscribedAt
			out[i].UnsubscribedAt = &t
		}
	}
	return out
}

func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.get(id)
}

func (s *MemoryStore) get(id uuid.UUID) (*Subscription, error) {
	sub, ok := s.subs[id]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	c := cloneSubscription(sub)
	c.InputParameters = slices.Clone(s.params[id])
	return c, nil
}

func (s *MemoryStore) List(ctx context.Context) ([]*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Subscription, 0, len(s.subs))
	for id := range s.subs {
		sub, _ := s.get(id)
		out = append(out, sub)
	}
	return out, nil
}

func (s *MemoryStore) Count(ctx context.Context, id uuid.UUID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.subs[id]; ok {
		return 1, nil
	}
	return 0, nil
}

// MeterUsages returns a copy of the meter usage rows of a subscription.
// Intended for assertions in tests; production code reads usages through a Tx.
func (s *MemoryStore) MeterUsages(id uuid.UUID) []MeterUsage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneUsages(s.usages[id])
}

// Parameters returns a copy of the parameter rows of a subscription.
func (s *MemoryStore) Parameters(id uuid.UUID) []Parameter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.params[id])
}

func (s *MemoryStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{
		subs:   make(map[uuid.UUID]*Subscription, len(s.subs)),
		params: make(map[uuid.UUID][]Parameter, len(s.params)),
		usages: make(map[uuid.UUID][]MeterUsage, len(s.usages)),
	}
	for id, sub := range s.subs {
		tx.subs[id] = cloneSubscription(sub)
	}
	for id, params := range s.params {
		tx.params[id] = slices.Clone(params)
	}
	for id, usages := range s.usages {
		tx.usages[id] = cloneUsages(usages)
	}

	if err := fn(tx); err != nil {
		return err
	}

	s.subs = tx.subs
	s.params = tx.params
	s.usages = tx.usages
	return nil
}

// memoryTx mutates a staged copy of the store. The owning InTx call commits
// the copy only when the transaction function succeeds.
type memoryTx struct {
	subs   map[uuid.UUID]*Subscription
	params map[uuid.UUID][]Parameter
	usages map[uuid.UUID][]MeterUsage
}

func (tx *memoryTx) Get(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	sub, ok := tx.subs[id]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	c := cloneSubscription(sub)
	c.InputParameters = slices.Clone(tx.params[id])
	return c, nil
}

func (tx *memoryTx) Insert(ctx context.Context, sub *Subscription) error {
	if _, ok := tx.subs[sub.ID]; ok {
		return ErrSubscriptionExists
	}
	tx.subs[sub.ID] = cloneSubscription(sub)
	return nil
}

func (tx *memoryTx) InsertParameters(ctx context.Context, params []Parameter) error {
	for _, p := range params {
		tx.params[p.SubscriptionID] = append(tx.params[p.SubscriptionID], p)
	}
	return nil
}

func (tx *memoryTx) InsertMeterUsages(ctx context.Context, usages []MeterUsage) error {
	for _, u := range usages {
		tx.usages[u.SubscriptionID] = append(tx.usages[u.SubscriptionID], u)
	}
	return nil
}

func (tx *memoryTx) Update(ctx context.Context, sub *Subscription) error {
	if _, ok := tx.subs[sub.ID]; !ok {
		return ErrSubscriptionNotFound
	}
	tx.subs[sub.ID] = cloneSubscription(sub)
	return nil
}

func (tx *memoryTx) EnabledMeterUsages(ctx context.Context, subscriptionID uuid.UUID) ([]MeterUsage, error) {
	var out []MeterUsage
	for _, u := range tx.usages[subscriptionID] {
		if u.Enabled {
			out = append(out, u)
		}
	}
	return cloneUsages(out), nil
}

func (tx *memoryTx) StampMeterUsagesUnsubscribed(ctx context.Context, subscriptionID uuid.UUID, at time.Time) error {
	usages := tx.usages[subscriptionID]
	for i := range usages {
		if usages[i].Enabled {
			t := at
			usages[i].UnsubscribedAt = &t
		}
	}
	tx.usages[subscriptionID] = usages
	return nil
}
