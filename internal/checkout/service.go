package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ariefcatur/storefront-fulfillment/internal/metrics"
	"github.com/ariefcatur/storefront-fulfillment/internal/orders"
	"github.com/ariefcatur/storefront-fulfillment/internal/payment"
	"go.uber.org/zap"
)

var (
	ErrNotOrderOwner = errors.New("order does not belong to the requester")
	ErrNotPayable    = errors.New("order is not awaiting payment")
)

type Gateway interface {
	CreateSession(ctx context.Context, req payment.SessionRequest) (string, error)
}

// Owner identifies who asks for a session. CustomerID is set for
// authenticated customers; guests prove ownership with the order's email.
type Owner struct {
	CustomerID string
	Email      string
}

type Config struct {
	Currency   string
	SuccessURL string
	CancelURL  string
}

type Service struct {
	orders  orders.Store
	gateway Gateway
	cfg     Config
	log     *zap.Logger
	metrics *metrics.Metrics
}

func NewService(store orders.Store, gw Gateway, cfg Config, log *zap.Logger, m *metrics.Metrics) *Service {
	if cfg.Currency == "" {
		cfg.Currency = "usd"
	}
	return &Service{orders: store, gateway: gw, cfg: cfg, log: log, metrics: m}
}

// StartSession returns a payment redirect URL for a PENDING order. It has no
// effect on the order or on stock; a failure is retried by calling it again.
func (s *Service) StartSession(ctx context.Context, orderID int64, owner Owner) (string, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return "", err
	}
	if !owns(o, owner) {
		return "", ErrNotOrderOwner
	}
	if o.Status != orders.StatusPending {
		return "", fmt.Errorf("%w: status %s", ErrNotPayable, o.Status)
	}

	url, err := s.gateway.CreateSession(ctx, s.sessionRequest(o))
	if err != nil {
		s.metrics.CheckoutErrors.Inc()
		s.log.Error("checkout session", zap.Int64("order_id", o.ID), zap.Error(err))
		return "", err
	}
	s.log.Info("checkout session created", zap.Int64("order_id", o.ID))
	return url, nil
}

func owns(o *orders.Order, owner Owner) bool {
	if o.CustomerID != "" {
		return owner.CustomerID == o.CustomerID
	}
	email := orders.NormalizeEmail(owner.Email)
	return email != "" && email == orders.NormalizeEmail(o.GuestEmail)
}

func (s *Service) sessionRequest(o *orders.Order) payment.SessionRequest {
	items := make([]payment.LineItem, 0, len(o.Items))
	for _, it := range o.Items {
		name := strings.TrimSpace(it.ProductName)
		if name == "" {
			name = "Product"
		}
		if it.Size != "" {
			name += " (Size " + it.Size + ")"
		}
		items = append(items, payment.LineItem{
			Name:       name,
			UnitAmount: it.UnitPrice.Shift(2).Round(0).IntPart(),
			Quantity:   int64(it.Quantity),
		})
	}
	return payment.SessionRequest{
		OrderID:    orders.CorrelationID(o.ID),
		Currency:   s.cfg.Currency,
		Items:      items,
		SuccessURL: s.cfg.SuccessURL,
		CancelURL:  s.cfg.CancelURL,
	}
}
