package kafka

import (
	"context"
	"strconv"
	"time"

	"github.com/ariefcatur/storefront-fulfillment/internal/orders"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// Publisher is the part of *Producer the notifier needs.
type Publisher interface {
	Publish(key, value []byte, headers ...kafka.Header)
}

// OrderEvents publishes order envelopes (v1) keyed by order id.
type OrderEvents struct {
	Created Publisher // order.created
	Paid    Publisher // order.paid
	Service string
}

type traceIDKey struct{}

// WithTraceID stores the request id that ends up in envelope trace_id.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, id)
}

func traceID(ctx context.Context) string {
	s, _ := ctx.Value(traceIDKey{}).(string)
	return s
}

func (e *OrderEvents) OrderCreated(ctx context.Context, o *orders.Order) {
	e.publish(ctx, e.Created, orders.EventOrderCreated, o.ID, orders.NewOrderCreatedPayload(o))
}

func (e *OrderEvents) OrderPaid(ctx context.Context, o *orders.Order) {
	e.publish(ctx, e.Paid, orders.EventOrderPaid, o.ID, orders.NewOrderPaidPayload(o))
}

func (e *OrderEvents) publish(ctx context.Context, p Publisher, eventType string, orderID int64, payload any) {
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      e.Service,
		TraceID:       traceID(ctx),
		CorrelationID: orders.CorrelationID(orderID),
		Payload:       MustMarshal(payload),
	}
	p.Publish(orders.PartitionKey(orderID), MustMarshal(ev),
		kafka.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafka.Header{Key: "x-event-version", Value: []byte(strconv.Itoa(ev.EventVersion))},
	)
}
