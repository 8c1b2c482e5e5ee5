// Package store persists canonical session orders.
package store

import (
	"context"
	"errors"
	"sync"

	"github.com/agatticelli/wavepick-sync/internal/session"
)

// ErrNotFound is returned when no order exists for an id
var ErrNotFound = errors.New("store: order not found")

// OrderStore holds one canonical order per document id
type OrderStore interface {
	Get(ctx context.Context, documentID string) (*session.Order, error)
	Put(ctx context.Context, order *session.Order) error
}

// MemoryOrderStore keeps orders in process. Used for dry runs and tests.
type MemoryOrderStore struct {
	mu     sync.RWMutex
	orders map[string]session.Order
}

// NewMemoryOrderStore creates an empty store
func NewMemoryOrderStore() *MemoryOrderStore {
	return &MemoryOrderStore{orders: make(map[string]session.Order)}
}

// Get returns a copy of the stored order
func (s *MemoryOrderStore) Get(_ context.Context, documentID string) (*session.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[documentID]
	if !ok {
		return nil, ErrNotFound
	}
	o.Items = append([]session.Item(nil), o.Items...)
	return &o, nil
}

// Put stores a copy of order
func (s *MemoryOrderStore) Put(_ context.Context, order *session.Order) error {
	if order.DocumentID == "" {
		return errors.New("store: document id is required")
	}
	o := *order
	o.Items = append([]session.Item(nil), order.Items...)
	s.mu.Lock()
	s.orders[o.DocumentID] = o
	s.mu.Unlock()
	return nil
}

// Len returns the number of stored orders
func (s *MemoryOrderStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orders)
}
