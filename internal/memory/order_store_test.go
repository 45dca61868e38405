package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/ariefcatur/storefront-fulfillment/internal/orders"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderStore_CreateGetIsolatesCopies(t *testing.T) {
	s := NewOrderStore()
	ctx := context.Background()
	o := &orders.Order{Status: orders.StatusPending, Items: []orders.OrderItem{{SKU: "A", Quantity: 1}}}

	require.NoError(t, s.Create(ctx, o))
	assert.Equal(t, int64(1), o.ID)
	assert.False(t, o.CreatedAt.IsZero())

	o.Items[0].Quantity = 99
	got, err := s.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Items[0].Quantity)

	_, err = s.Get(ctx, 404)
	assert.ErrorIs(t, err, orders.ErrOrderNotFound)
}

func TestOrderStore_TransitionStatusIsCompareAndSet(t *testing.T) {
	s := NewOrderStore()
	ctx := context.Background()
	o := &orders.Order{Status: orders.StatusPending}
	require.NoError(t, s.Create(ctx, o))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.TransitionStatus(ctx, o.ID, orders.StatusPending, orders.StatusPaid, "evt_1")
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	got, err := s.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPaid, got.Status)
	assert.Equal(t, "evt_1", got.PaymentEventID)

	_, err = s.TransitionStatus(ctx, 404, orders.StatusPending, orders.StatusPaid, "")
	assert.ErrorIs(t, err, orders.ErrOrderNotFound)
}
