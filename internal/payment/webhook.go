package payment

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

const (
	EventCheckoutCompleted             = "checkout.session.completed"
	EventCheckoutAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
)

var ErrInvalidSignature = errors.New("invalid webhook signature")

// Confirmation is the provider-neutral view of a verified webhook event.
// Paid is false for event types that do not confirm a payment and for
// completed sessions whose payment is still outstanding.
type Confirmation struct {
	EventID   string
	EventType string
	SessionID string
	OrderRef  string
	Paid      bool
}

type WebhookVerifier struct {
	secret    string
	tolerance time.Duration
}

func NewWebhookVerifier(secret string, tolerance time.Duration) *WebhookVerifier {
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	return &WebhookVerifier{secret: secret, tolerance: tolerance}
}

// Verify checks the HMAC signature header against the raw payload and
// decodes the event. Nothing in the payload is trusted before this passes.
func (v *WebhookVerifier) Verify(payload []byte, sigHeader string) (Confirmation, error) {
	var c Confirmation
	if sigHeader == "" {
		return c, fmt.Errorf("%w: missing signature header", ErrInvalidSignature)
	}
	ev, err := webhook.ConstructEventWithOptions(payload, sigHeader, v.secret, webhook.ConstructEventOptions{
		Tolerance:                v.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return c, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	c.EventID = ev.ID
	c.EventType = string(ev.Type)

	if c.EventType != EventCheckoutCompleted && c.EventType != EventCheckoutAsyncPaymentSucceeded {
		return c, nil
	}
	if ev.Data == nil {
		return c, nil
	}
	var s stripe.CheckoutSession
	if err := json.Unmarshal(ev.Data.Raw, &s); err != nil {
		return c, fmt.Errorf("decode checkout session: %w", err)
	}
	c.SessionID = s.ID
	c.OrderRef = s.Metadata[MetadataOrderID]
	c.Paid = c.EventType == EventCheckoutAsyncPaymentSucceeded ||
		s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid
	return c, nil
}
