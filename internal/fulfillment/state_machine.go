package fulfillment

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/storefront-fulfillment/internal/metrics"
	"github.com/ariefcatur/storefront-fulfillment/internal/orders"
	"github.com/ariefcatur/storefront-fulfillment/internal/payment"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("github.com/ariefcatur/storefront-fulfillment/internal/fulfillment")

// ErrStaleOrInvalidEvent rejects an event without touching any state: the
// signature did not verify, or the order is in a state a payment can no
// longer move (CANCELLED, CART).
var ErrStaleOrInvalidEvent = errors.New("stale or invalid payment event")

type Outcome string

const (
	OutcomeApplied       Outcome = "applied"
	OutcomeDuplicate     Outcome = "duplicate"
	OutcomeIgnored       Outcome = "ignored"
	OutcomeOrderNotFound Outcome = "order_not_found"
	OutcomeRejected      Outcome = "rejected"
)

// Ack is returned for every event that passed signature verification. The
// transport acknowledges all of them so the provider stops retrying.
type Ack struct {
	Outcome Outcome       `json:"outcome"`
	EventID string        `json:"event_id,omitempty"`
	OrderID int64         `json:"order_id,omitempty"`
	Status  orders.Status `json:"status,omitempty"`
}

type Verifier interface {
	Verify(payload []byte, sigHeader string) (payment.Confirmation, error)
}

// EventLog records provider event ids that have been fully applied. It is a
// shortcut only; the status compare-and-set decides.
type EventLog interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Mark(ctx context.Context, eventID string) error
}

type StateMachine struct {
	orders   orders.Store
	verifier Verifier
	events   EventLog
	notifier orders.Notifier
	log      *zap.Logger
	metrics  *metrics.Metrics
}

func NewStateMachine(store orders.Store, verifier Verifier, events EventLog, notifier orders.Notifier, log *zap.Logger, m *metrics.Metrics) *StateMachine {
	if notifier == nil {
		notifier = orders.NopNotifier{}
	}
	return &StateMachine{orders: store, verifier: verifier, events: events, notifier: notifier, log: log, metrics: m}
}

// ApplyPaymentConfirmation moves a PENDING order to PAID. Repeating it for an
// order that is already PAID or further along returns the current status.
func (sm *StateMachine) ApplyPaymentConfirmation(ctx context.Context, orderID int64, providerEventID string) (orders.Status, error) {
	status, _, err := sm.confirm(ctx, orderID, providerEventID)
	return status, err
}

// confirm reports whether this call performed the PENDING -> PAID write.
func (sm *StateMachine) confirm(ctx context.Context, orderID int64, providerEventID string) (_ orders.Status, applied bool, err error) {
	ctx, span := tracer.Start(ctx, "fulfillment.ApplyPaymentConfirmation", trace.WithAttributes(
		attribute.Int64("order.id", orderID),
		attribute.String("payment.event_id", providerEventID),
	))
	defer func() {
		span.SetAttributes(attribute.Bool("payment.applied", applied))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	log := sm.log.With(zap.Int64("order_id", orderID), zap.String("event_id", providerEventID))

	// Look the event up before reading the order: a hit means its write is
	// already visible.
	seen := sm.seen(ctx, log, providerEventID)
	o, err := sm.orders.Get(ctx, orderID)
	if err != nil {
		return "", false, err
	}
	if seen {
		log.Info("payment event already processed", zap.String("status", string(o.Status)))
		return o.Status, false, nil
	}

	switch {
	case o.Status.PaidOrLater():
		log.Info("duplicate payment confirmation ignored", zap.String("status", string(o.Status)))
		sm.mark(ctx, log, providerEventID)
		return o.Status, false, nil
	case o.Status != orders.StatusPending:
		log.Warn("payment confirmation for order that cannot be paid", zap.String("status", string(o.Status)))
		return o.Status, false, fmt.Errorf("%w: order %d is %s", ErrStaleOrInvalidEvent, orderID, o.Status)
	}

	ok, err := sm.orders.TransitionStatus(ctx, orderID, orders.StatusPending, orders.StatusPaid, providerEventID)
	if err != nil {
		return "", false, fmt.Errorf("mark order %d paid: %w", orderID, err)
	}
	if !ok {
		// Lost the race to a concurrent delivery; report whatever it wrote.
		cur, err := sm.orders.Get(ctx, orderID)
		if err != nil {
			return "", false, err
		}
		if !cur.Status.PaidOrLater() {
			log.Warn("order left PENDING before payment was applied", zap.String("status", string(cur.Status)))
			return cur.Status, false, fmt.Errorf("%w: order %d is %s", ErrStaleOrInvalidEvent, orderID, cur.Status)
		}
		log.Info("concurrent payment confirmation already applied", zap.String("status", string(cur.Status)))
		return cur.Status, false, nil
	}

	sm.mark(ctx, log, providerEventID)
	if paid, err := sm.orders.Get(ctx, orderID); err == nil {
		o = paid
	} else {
		o.Status = orders.StatusPaid
		o.PaymentEventID = providerEventID
	}
	log.Info("order marked as paid")
	sm.notifier.OrderPaid(ctx, o)
	return orders.StatusPaid, true, nil
}

// VerifyAndApply is the webhook entry point. It returns an error only when
// the event is not authentic or the store failed; every semantic miss is
// logged and acknowledged.
func (sm *StateMachine) VerifyAndApply(ctx context.Context, payload []byte, sigHeader string) (Ack, error) {
	c, err := sm.verifier.Verify(payload, sigHeader)
	if err != nil {
		sm.metrics.WebhookEvents.WithLabelValues("invalid_signature").Inc()
		sm.log.Warn("webhook verification failed", zap.Error(err))
		return Ack{}, fmt.Errorf("%w: %v", ErrStaleOrInvalidEvent, err)
	}

	ack, err := sm.apply(ctx, c)
	if err != nil {
		sm.metrics.WebhookEvents.WithLabelValues("error").Inc()
		return ack, err
	}
	sm.metrics.WebhookEvents.WithLabelValues(string(ack.Outcome)).Inc()
	return ack, nil
}

func (sm *StateMachine) apply(ctx context.Context, c payment.Confirmation) (Ack, error) {
	ack := Ack{EventID: c.EventID, Outcome: OutcomeIgnored}
	log := sm.log.With(zap.String("event_id", c.EventID), zap.String("event_type", c.EventType))

	if !c.Paid {
		log.Debug("webhook event does not confirm a payment")
		return ack, nil
	}
	if c.OrderRef == "" {
		log.Warn("webhook: no order_id in session metadata", zap.String("session_id", c.SessionID))
		return ack, nil
	}
	orderID, err := orders.ParseCorrelationID(c.OrderRef)
	if err != nil {
		log.Warn("webhook: invalid order_id in metadata", zap.String("order_ref", c.OrderRef))
		return ack, nil
	}
	ack.OrderID = orderID

	status, applied, err := sm.confirm(ctx, orderID, c.EventID)
	ack.Status = status
	switch {
	case err == nil && applied:
		ack.Outcome = OutcomeApplied
	case err == nil:
		ack.Outcome = OutcomeDuplicate
	case errors.Is(err, orders.ErrOrderNotFound):
		log.Warn("webhook: order not found", zap.Int64("order_id", orderID))
		ack.Outcome = OutcomeOrderNotFound
	case errors.Is(err, ErrStaleOrInvalidEvent):
		ack.Outcome = OutcomeRejected
	default:
		// Store failure: surface it so the provider redelivers later.
		log.Error("webhook: apply payment confirmation", zap.Error(err))
		return ack, err
	}
	return ack, nil
}

func (sm *StateMachine) seen(ctx context.Context, log *zap.Logger, eventID string) bool {
	if sm.events == nil || eventID == "" {
		return false
	}
	ok, err := sm.events.Seen(ctx, eventID)
	if err != nil {
		log.Warn("event log lookup failed, falling back to status check", zap.Error(err))
		return false
	}
	return ok
}

func (sm *StateMachine) mark(ctx context.Context, log *zap.Logger, eventID string) {
	if sm.events == nil || eventID == "" {
		return
	}
	if err := sm.events.Mark(ctx, eventID); err != nil {
		log.Warn("event log write failed", zap.Error(err))
	}
}
