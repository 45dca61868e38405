package httpx_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ariefcatur/storefront-fulfillment/internal/checkout"
	"github.com/ariefcatur/storefront-fulfillment/internal/fulfillment"
	"github.com/ariefcatur/storefront-fulfillment/internal/httpx"
	"github.com/ariefcatur/storefront-fulfillment/internal/memory"
	"github.com/ariefcatur/storefront-fulfillment/internal/metrics"
	"github.com/ariefcatur/storefront-fulfillment/internal/orders"
	"github.com/ariefcatur/storefront-fulfillment/internal/payment"
	"github.com/ariefcatur/storefront-fulfillment/internal/redisx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79/webhook"
	"go.uber.org/zap/zaptest"
)

const whsec = "whsec_http"

type stubGateway struct{}

func (stubGateway) CreateSession(_ context.Context, req payment.SessionRequest) (string, error) {
	return "https://pay.example/" + req.OrderID, nil
}

type stubCache map[int64]redisx.CachedStatus

func (c stubCache) Get(_ context.Context, id int64) (redisx.CachedStatus, bool, error) {
	cs, ok := c[id]
	return cs, ok, nil
}

type server struct {
	srv     *httptest.Server
	catalog *memory.Catalog
	store   *memory.OrderStore
	handler *httpx.OrdersHandler
}

func newServer(t *testing.T, webhookEnabled bool) *server {
	t.Helper()
	log := zaptest.NewLogger(t)
	m := metrics.New(prometheus.NewRegistry())

	catalog := memory.NewCatalog()
	tee := catalog.AddProduct("Basic Tee", decimal.RequireFromString("19.99"), "", "white")
	catalog.AddVariant(tee.ID, "M", "SKU-42", 3)
	store := memory.NewOrderStore()

	h := &httpx.OrdersHandler{
		Builder:        orders.NewBuilder(catalog, store, nil, log, m),
		Orders:         store,
		Checkout:       checkout.NewService(store, stubGateway{}, checkout.Config{}, log, m),
		Payments:       fulfillment.NewStateMachine(store, payment.NewWebhookVerifier(whsec, 0), memory.NewEventLog(), nil, log, m),
		Log:            log,
		WebhookEnabled: webhookEnabled,
	}
	r := httpx.NewRouter(log, m, nil)
	h.Register(r)

	s := &server{srv: httptest.NewServer(r), catalog: catalog, store: store, handler: h}
	t.Cleanup(s.srv.Close)
	return s
}

func (s *server) do(t *testing.T, method, path, body string, header http.Header) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, s.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func (s *server) createOrder(t *testing.T, qty int) map[string]any {
	t.Helper()
	resp, body := s.do(t, http.MethodPost, "/orders",
		fmt.Sprintf(`{"guest_email":"buyer@x.com","items":[{"sku":"SKU-42","quantity":%d}]}`, qty), nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	return body
}

func TestCreateOrder_CreatedThenOutOfStock(t *testing.T) {
	s := newServer(t, true)

	body := s.createOrder(t, 3)
	assert.Equal(t, "PENDING", body["status"])
	assert.Equal(t, "buyer@x.com", body["guest_email"])
	assert.NotContains(t, body, "PaymentEventID")

	resp, body := s.do(t, http.MethodPost, "/orders", `{"items":[{"sku":"SKU-42","quantity":1}]}`, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "out_of_stock", body["kind"])
	assert.Equal(t, "SKU-42", body["sku"])
	assert.Equal(t, float64(1), body["requested"])
	assert.Equal(t, float64(0), body["available"])
}

func TestCreateOrder_ClientErrors(t *testing.T) {
	s := newServer(t, true)

	tests := []struct {
		name string
		body string
		code int
		kind string
	}{
		{"malformed json", `{"items":`, http.StatusBadRequest, "validation_error"},
		{"no items", `{"items":[]}`, http.StatusBadRequest, "validation_error"},
		{"zero quantity", `{"items":[{"sku":"SKU-42","quantity":0}]}`, http.StatusBadRequest, "validation_error"},
		{"bad email", `{"guest_email":"nope","items":[{"sku":"SKU-42","quantity":1}]}`, http.StatusBadRequest, "validation_error"},
		{"unknown sku", `{"items":[{"sku":"NOPE","quantity":1}]}`, http.StatusNotFound, "sku_not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := s.do(t, http.MethodPost, "/orders", tt.body, nil)
			assert.Equal(t, tt.code, resp.StatusCode)
			assert.Equal(t, tt.kind, body["kind"])
		})
	}
	assert.Equal(t, 3, s.catalog.Stock("SKU-42"))
	assert.Zero(t, s.store.Len())
}

func TestGetOrderStatus(t *testing.T) {
	s := newServer(t, true)
	id := int64(s.createOrder(t, 1)["id"].(float64))
	path := fmt.Sprintf("/orders/%d/status", id)

	resp, body := s.do(t, http.MethodGet, path, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "PENDING", body["status"])
	assert.Equal(t, false, body["cached"])

	s.handler.Cache = stubCache{id: {Status: "PAID", UpdatedAt: time.Now()}}
	_, body = s.do(t, http.MethodGet, path, "", nil)
	assert.Equal(t, "PAID", body["status"])
	assert.Equal(t, true, body["cached"])

	resp, body = s.do(t, http.MethodGet, "/orders/777/status", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "order_not_found", body["kind"])

	resp, _ = s.do(t, http.MethodGet, "/orders/abc/status", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCheckoutSession(t *testing.T) {
	s := newServer(t, true)
	id := int64(s.createOrder(t, 1)["id"].(float64))
	path := fmt.Sprintf("/orders/%d/checkout-session", id)

	resp, body := s.do(t, http.MethodPost, path, `{"guest_email":"BUYER@x.com"}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, fmt.Sprintf("https://pay.example/%d", id), body["url"])

	resp, body = s.do(t, http.MethodPost, path, `{"guest_email":"thief@x.com"}`, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "forbidden", body["kind"])
}

func signedHeader(payload string) http.Header {
	sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    whsec,
		Timestamp: time.Now(),
	})
	return http.Header{"Stripe-Signature": []string{sp.Header}}
}

func TestPaymentWebhook(t *testing.T) {
	s := newServer(t, true)
	id := int64(s.createOrder(t, 1)["id"].(float64))
	payload := fmt.Sprintf(`{"id":"evt_1","object":"event","type":"checkout.session.completed",
	  "data":{"object":{"id":"cs_1","object":"checkout.session","payment_status":"paid","metadata":{"order_id":"%d"}}}}`, id)

	resp, body := s.do(t, http.MethodPost, "/payments/webhook", payload, http.Header{"Stripe-Signature": []string{"t=1,v1=00"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "stale_or_invalid_event", body["kind"])

	resp, body = s.do(t, http.MethodPost, "/payments/webhook", payload, signedHeader(payload))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "applied", body["outcome"])
	assert.Equal(t, "PAID", body["status"])

	resp, body = s.do(t, http.MethodPost, "/payments/webhook", payload, signedHeader(payload))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "duplicate", body["outcome"])

	o, err := s.store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPaid, o.Status)
}

func TestPaymentWebhook_DisabledWithoutSecret(t *testing.T) {
	s := newServer(t, false)

	resp, body := s.do(t, http.MethodPost, "/payments/webhook", `{}`, nil)

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "unavailable", body["kind"])
}

func TestHealthz(t *testing.T) {
	s := newServer(t, true)
	resp, err := http.Get(s.srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
