package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ariefcatur/storefront-fulfillment/internal/inventory"
	"github.com/ariefcatur/storefront-fulfillment/internal/metrics"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("github.com/ariefcatur/storefront-fulfillment/internal/orders")

// Builder turns a cart into a PENDING order. Stock is reserved item by item
// in request order; any failure releases what this call already reserved
// before the error is returned.
type Builder struct {
	ledger   inventory.Ledger
	store    Store
	notifier Notifier
	log      *zap.Logger
	metrics  *metrics.Metrics
}

func NewBuilder(ledger inventory.Ledger, store Store, notifier Notifier, log *zap.Logger, m *metrics.Metrics) *Builder {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Builder{ledger: ledger, store: store, notifier: notifier, log: log, metrics: m}
}

func (b *Builder) CreateOrder(ctx context.Context, req CreateOrderRequest) (_ *Order, err error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "orders.CreateOrder")
	defer func() {
		b.metrics.BuildDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			b.metrics.BuildFailures.WithLabelValues(ErrorKind(err)).Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	req, err = normalize(req)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("order.items", len(req.Items)))

	var reserved []inventory.Reservation
	order := &Order{
		GuestEmail: req.GuestEmail,
		CustomerID: req.CustomerID,
		Status:     StatusPending,
		TotalPrice: decimal.Zero,
		Items:      make([]OrderItem, 0, len(req.Items)),
	}

	for i, it := range req.Items {
		r, rerr := b.ledger.Reserve(ctx, it.SKU, it.Quantity)
		if rerr != nil {
			b.metrics.Reservations.WithLabelValues(ErrorKind(rerr)).Inc()
			b.rollback(ctx, reserved)
			return nil, fmt.Errorf("reserve %s: %w", it.SKU, rerr)
		}
		b.metrics.Reservations.WithLabelValues("reserved").Inc()
		reserved = append(reserved, r)

		// The SKU picks the variant; the size may only confirm it.
		if it.Size != "" && !strings.EqualFold(it.Size, r.Variant.Size) {
			b.rollback(ctx, reserved)
			return nil, &ValidationError{
				Field:   fmt.Sprintf("items[%d].size", i),
				Message: fmt.Sprintf("size %q does not match sku %s (size %s)", it.Size, it.SKU, r.Variant.Size),
			}
		}

		item := snapshot(r)
		order.Items = append(order.Items, item)
		order.TotalPrice = order.TotalPrice.Add(item.LineTotal())
	}

	if err := b.store.Create(ctx, order); err != nil {
		b.rollback(ctx, reserved)
		return nil, fmt.Errorf("persist order: %w", err)
	}
	b.metrics.OrdersCreated.Inc()
	span.SetAttributes(attribute.Int64("order.id", order.ID))

	b.log.Info("order created",
		zap.Int64("order_id", order.ID),
		zap.Int("items", len(order.Items)),
		zap.String("total", order.TotalPrice.StringFixed(2)),
	)
	b.notifier.OrderCreated(ctx, order)
	return order, nil
}

// rollback releases reservations newest first. It runs on a context that
// survives cancellation of the request so a client disconnect cannot leave
// stock held.
func (b *Builder) rollback(ctx context.Context, reserved []inventory.Reservation) {
	ctx = context.WithoutCancel(ctx)
	for i := len(reserved) - 1; i >= 0; i-- {
		r := reserved[i]
		if err := b.ledger.Release(ctx, r.SKU, r.Quantity); err != nil {
			b.metrics.Reservations.WithLabelValues("release_failed").Inc()
			b.log.Error("release reservation",
				zap.String("sku", r.SKU), zap.Int("qty", r.Quantity), zap.Error(err))
			continue
		}
		b.metrics.Reservations.WithLabelValues("released").Inc()
	}
}

func snapshot(r inventory.Reservation) OrderItem {
	vid := r.Variant.ID
	return OrderItem{
		ProductID:   r.Product.ID,
		ProductName: r.Product.Name,
		Quantity:    r.Quantity,
		UnitPrice:   r.Product.Price,
		Size:        r.Variant.Size,
		SKU:         r.SKU,
		ImageURL:    r.Product.ImageURL,
		Color:       r.Product.Color,
		VariantID:   &vid,
	}
}

// ErrorKind classifies err for metrics and the transport's error body.
func ErrorKind(err error) string {
	var ve *ValidationError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ve):
		return "validation_error"
	case errors.Is(err, inventory.ErrSkuNotFound):
		return "sku_not_found"
	case errors.Is(err, inventory.ErrOutOfStock):
		return "out_of_stock"
	case errors.Is(err, ErrOrderNotFound):
		return "order_not_found"
	default:
		return "internal"
	}
}
