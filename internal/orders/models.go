package orders

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var ErrOrderNotFound = errors.New("order not found")

type Order struct {
	ID             int64           `json:"id"`
	GuestEmail     string          `json:"guest_email"`
	CustomerID     string          `json:"customer_id,omitempty"`
	Status         Status          `json:"status"`
	TotalPrice     decimal.Decimal `json:"total_price"`
	PaymentEventID string          `json:"-"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	Items          []OrderItem     `json:"items"`
}

// OrderItem is captured when the order is created and never rewritten, so
// later catalog edits do not change historical orders. VariantID is nil once
// the variant has been deleted.
type OrderItem struct {
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Size        string          `json:"size"`
	SKU         string          `json:"sku"`
	ImageURL    string          `json:"image_url,omitempty"`
	Color       string          `json:"color,omitempty"`
	VariantID   *int64          `json:"-"`
}

func (it OrderItem) LineTotal() decimal.Decimal {
	return it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))
}

// Store persists orders. Create assigns ID, CreatedAt and UpdatedAt.
// TransitionStatus is a compare-and-set: it writes only when the stored
// status still equals from and reports whether it did.
type Store interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id int64) (*Order, error)
	TransitionStatus(ctx context.Context, id int64, from, to Status, paymentEventID string) (bool, error)
}

// Notifier announces durable order changes downstream. Implementations must
// not block on the network.
type Notifier interface {
	OrderCreated(ctx context.Context, o *Order)
	OrderPaid(ctx context.Context, o *Order)
}

type NopNotifier struct{}

func (NopNotifier) OrderCreated(context.Context, *Order) {}
func (NopNotifier) OrderPaid(context.Context, *Order)    {}
