package projector

import (
	"context"
	"encoding/json"
	"time"

	kafkax "github.com/ariefcatur/storefront-fulfillment/internal/kafka"
	"github.com/ariefcatur/storefront-fulfillment/internal/orders"
	"github.com/ariefcatur/storefront-fulfillment/internal/redisx"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Service keeps the Redis order-status cache in step with the order topics.
type Service struct {
	Cache *redisx.StatusCache
	Dedup *redisx.EventLog
	Log   *zap.Logger
}

// HandleOrderEvent is installed as the consumer handler for both
// order.created and order.paid.
func (s *Service) HandleOrderEvent(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		s.Log.Warn("undecodable envelope skipped", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}

	first, err := s.Dedup.Claim(ctx, env.EventID)
	if err != nil {
		return err
	}
	if !first {
		return nil
	}

	if err := s.project(ctx, env); err != nil {
		_ = s.Dedup.Forget(ctx, env.EventID)
		return err
	}
	return nil
}

func (s *Service) project(ctx context.Context, env orders.Envelope) error {
	var (
		orderID int64
		cs      redisx.CachedStatus
	)
	switch env.EventType {
	case orders.EventOrderCreated:
		p, err := kafkax.UnwrapPayload[orders.OrderCreatedPayload](env.Payload)
		if err != nil {
			return err
		}
		orderID = p.OrderID
		cs = redisx.CachedStatus{Status: string(p.Status), UpdatedAt: stamp(p.CreatedAt, env.OccurredAt)}
	case orders.EventOrderPaid:
		p, err := kafkax.UnwrapPayload[orders.OrderPaidPayload](env.Payload)
		if err != nil {
			return err
		}
		orderID = p.OrderID
		cs = redisx.CachedStatus{Status: string(p.Status), UpdatedAt: stamp(p.PaidAt, env.OccurredAt)}
	default:
		return nil
	}

	if err := s.Cache.SetIfNewer(ctx, orderID, cs); err != nil {
		return err
	}
	s.Log.Debug("status projected", zap.Int64("order_id", orderID), zap.String("status", cs.Status))
	return nil
}

func stamp(t, fallback time.Time) time.Time {
	if t.IsZero() {
		return fallback
	}
	return t
}
