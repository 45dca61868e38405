package orders

import (
	"encoding/json"
	"strconv"
	"time"
)

const (
	EventOrderCreated = "OrderCreated"
	EventOrderPaid    = "OrderPaid"
)

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // EventOrderCreated | EventOrderPaid
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"` // e.g. "storefront-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

type ItemLine struct {
	SKU       string `json:"sku"`
	Qty       int    `json:"qty"`
	UnitPrice string `json:"unit_price"`
}

type OrderCreatedPayload struct {
	OrderID    int64      `json:"order_id"`
	CustomerID string     `json:"customer_id,omitempty"`
	Status     Status     `json:"status"`
	Items      []ItemLine `json:"items"`
	TotalPrice string     `json:"total_price"`
	CreatedAt  time.Time  `json:"created_at"`
}

type OrderPaidPayload struct {
	OrderID        int64     `json:"order_id"`
	Status         Status    `json:"status"`
	PaymentEventID string    `json:"payment_event_id"`
	TotalPrice     string    `json:"total_price"`
	PaidAt         time.Time `json:"paid_at"`
}

func NewOrderCreatedPayload(o *Order) OrderCreatedPayload {
	items := make([]ItemLine, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, ItemLine{SKU: it.SKU, Qty: it.Quantity, UnitPrice: it.UnitPrice.StringFixed(2)})
	}
	return OrderCreatedPayload{
		OrderID:    o.ID,
		CustomerID: o.CustomerID,
		Status:     o.Status,
		Items:      items,
		TotalPrice: o.TotalPrice.StringFixed(2),
		CreatedAt:  o.CreatedAt,
	}
}

func NewOrderPaidPayload(o *Order) OrderPaidPayload {
	return OrderPaidPayload{
		OrderID:        o.ID,
		Status:         o.Status,
		PaymentEventID: o.PaymentEventID,
		TotalPrice:     o.TotalPrice.StringFixed(2),
		PaidAt:         o.UpdatedAt,
	}
}

// CorrelationID renders an order id the way it travels in envelopes and
// payment metadata.
func CorrelationID(id int64) string { return strconv.FormatInt(id, 10) }

// ParseCorrelationID is the inverse of CorrelationID.
func ParseCorrelationID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, &ValidationError{Field: "order_id", Message: "not an order id: " + strconv.Quote(s)}
	}
	return id, nil
}
