package orders

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusPaid, true},
		{StatusPending, StatusCancelled, true},
		{StatusPaid, StatusProcessing, true},
		{StatusProcessing, StatusShipped, true},
		{StatusShipped, StatusDelivered, true},
		{StatusShipped, StatusCancelled, true},
		{StatusPending, StatusShipped, false},
		{StatusPaid, StatusPending, false},
		{StatusDelivered, StatusCancelled, false},
		{StatusCancelled, StatusPaid, false},
		{StatusCart, StatusPaid, false},
		{StatusCart, StatusPending, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestStatus_Predicates(t *testing.T) {
	assert.True(t, StatusDelivered.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusShipped.Terminal())

	assert.True(t, StatusPaid.PaidOrLater())
	assert.True(t, StatusDelivered.PaidOrLater())
	assert.False(t, StatusPending.PaidOrLater())
	assert.False(t, StatusCancelled.PaidOrLater())
	assert.False(t, StatusCart.PaidOrLater())

	assert.True(t, StatusCart.Valid())
	assert.False(t, Status("REFUNDED").Valid())
}
