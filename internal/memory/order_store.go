package memory

import (
	"context"
	"sync"
	"time"

	"github.com/ariefcatur/storefront-fulfillment/internal/orders"
)

type OrderStore struct {
	mu     sync.RWMutex
	orders map[int64]*orders.Order
	nextID int64
	now    func() time.Time
}

func NewOrderStore() *OrderStore {
	return &OrderStore{
		orders: make(map[int64]*orders.Order),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *OrderStore) Create(_ context.Context, o *orders.Order) error {
	if o == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	o.ID = s.nextID
	o.CreatedAt = s.now()
	o.UpdatedAt = o.CreatedAt
	s.orders[o.ID] = cloneOrder(o)
	return nil
}

func (s *OrderStore) Get(_ context.Context, id int64) (*orders.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, orders.ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (s *OrderStore) TransitionStatus(_ context.Context, id int64, from, to orders.Status, paymentEventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return false, orders.ErrOrderNotFound
	}
	if o.Status != from {
		return false, nil
	}
	o.Status = to
	if paymentEventID != "" {
		o.PaymentEventID = paymentEventID
	}
	o.UpdatedAt = s.now()
	return true, nil
}

// Len is the number of stored orders.
func (s *OrderStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orders)
}

func cloneOrder(o *orders.Order) *orders.Order {
	clone := *o
	clone.Items = make([]orders.OrderItem, len(o.Items))
	copy(clone.Items, o.Items)
	return &clone
}
