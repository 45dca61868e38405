package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/ariefcatur/storefront-fulfillment/internal/checkout"
	"github.com/ariefcatur/storefront-fulfillment/internal/fulfillment"
	"github.com/ariefcatur/storefront-fulfillment/internal/inventory"
	kafkax "github.com/ariefcatur/storefront-fulfillment/internal/kafka"
	"github.com/ariefcatur/storefront-fulfillment/internal/orders"
	"github.com/ariefcatur/storefront-fulfillment/internal/redisx"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// HeaderCustomerID carries the authenticated customer id set by the upstream
// auth layer. Requests without it are treated as guests.
const HeaderCustomerID = "X-Customer-ID"

const maxWebhookBody = 64 << 10

type StatusReader interface {
	Get(ctx context.Context, orderID int64) (redisx.CachedStatus, bool, error)
}

type OrdersHandler struct {
	Builder  *orders.Builder
	Orders   orders.Store
	Checkout *checkout.Service
	Payments *fulfillment.StateMachine
	Cache    StatusReader // optional
	Log      *zap.Logger

	// WebhookEnabled is false when no signing secret is configured; the
	// webhook then answers 503 instead of accepting unverifiable events.
	WebhookEnabled bool
}

type createOrderReq struct {
	GuestEmail string             `json:"guest_email"`
	Items      []orders.ItemInput `json:"items"`
}

type checkoutSessionReq struct {
	GuestEmail string `json:"guest_email"`
}

type checkoutSessionResp struct {
	URL string `json:"url"`
}

type statusResp struct {
	OrderID   int64     `json:"order_id"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
	Cached    bool      `json:"cached"`
}

type errorResp struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	SKU       string `json:"sku,omitempty"`
	Requested int    `json:"requested,omitempty"`
	Available *int   `json:"available,omitempty"`
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders/{id}/status", h.getOrderStatus)
	r.Post("/orders/{id}/checkout-session", h.createCheckoutSession)
	r.Post("/payments/webhook", h.paymentWebhook)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *OrdersHandler) writeError(w http.ResponseWriter, err error) {
	var (
		ve  *orders.ValidationError
		oos *inventory.OutOfStockError
	)
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errorResp{Kind: "validation_error", Message: ve.Error()})
	case errors.As(err, &oos):
		avail := oos.Available
		writeJSON(w, http.StatusConflict, errorResp{
			Kind: "out_of_stock", Message: oos.Error(),
			SKU: oos.SKU, Requested: oos.Requested, Available: &avail,
		})
	case errors.Is(err, inventory.ErrSkuNotFound):
		writeJSON(w, http.StatusNotFound, errorResp{Kind: "sku_not_found", Message: err.Error()})
	case errors.Is(err, orders.ErrOrderNotFound):
		writeJSON(w, http.StatusNotFound, errorResp{Kind: "order_not_found", Message: "order not found"})
	case errors.Is(err, checkout.ErrNotOrderOwner):
		writeJSON(w, http.StatusForbidden, errorResp{Kind: "forbidden", Message: err.Error()})
	case errors.Is(err, checkout.ErrNotPayable):
		writeJSON(w, http.StatusConflict, errorResp{Kind: "not_payable", Message: err.Error()})
	case errors.Is(err, fulfillment.ErrStaleOrInvalidEvent):
		writeJSON(w, http.StatusBadRequest, errorResp{Kind: "stale_or_invalid_event", Message: "event rejected"})
	default:
		h.Log.Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResp{Kind: "internal", Message: "internal error"})
	}
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp{Kind: "validation_error", Message: "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	ctx = kafkax.WithTraceID(ctx, middleware.GetReqID(r.Context()))

	o, err := h.Builder.CreateOrder(ctx, orders.CreateOrderRequest{
		GuestEmail: req.GuestEmail,
		CustomerID: r.Header.Get(HeaderCustomerID),
		Items:      req.Items,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (h *OrdersHandler) getOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := orders.ParseCorrelationID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// 1) cache
	if h.Cache != nil {
		cs, ok, err := h.Cache.Get(ctx, id)
		if err != nil {
			h.Log.Warn("status cache read", zap.Int64("order_id", id), zap.Error(err))
		}
		if ok {
			writeJSON(w, http.StatusOK, statusResp{OrderID: id, Status: cs.Status, UpdatedAt: cs.UpdatedAt, Cached: true})
			return
		}
	}

	// 2) store
	o, err := h.Orders.Get(ctx, id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResp{OrderID: id, Status: string(o.Status), UpdatedAt: o.UpdatedAt})
}

func (h *OrdersHandler) createCheckoutSession(w http.ResponseWriter, r *http.Request) {
	id, err := orders.ParseCorrelationID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	var req checkoutSessionReq
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeJSON(w, http.StatusBadRequest, errorResp{Kind: "validation_error", Message: "invalid json"})
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	url, err := h.Checkout.StartSession(ctx, id, checkout.Owner{
		CustomerID: r.Header.Get(HeaderCustomerID),
		Email:      req.GuestEmail,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, checkoutSessionResp{URL: url})
}

// paymentWebhook acknowledges every authentic event with 200, whatever its
// semantic outcome, so the provider stops redelivering. Only a bad signature
// is rejected with 400; a store failure answers 500 to get a redelivery.
func (h *OrdersHandler) paymentWebhook(w http.ResponseWriter, r *http.Request) {
	if !h.WebhookEnabled {
		h.Log.Error("payment webhook secret is not configured")
		writeJSON(w, http.StatusServiceUnavailable, errorResp{Kind: "unavailable", Message: "webhook not configured"})
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResp{Kind: "validation_error", Message: "payload too large"})
		return
	}

	ctx := kafkax.WithTraceID(r.Context(), middleware.GetReqID(r.Context()))
	ack, err := h.Payments.VerifyAndApply(ctx, payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.Log.Info("payment webhook handled",
		zap.String("event_id", ack.EventID),
		zap.String("outcome", string(ack.Outcome)),
		zap.Int64("order_id", ack.OrderID),
	)
	writeJSON(w, http.StatusOK, ack)
}
