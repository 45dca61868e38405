package payment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79/webhook"
)

const testSecret = "whsec_test_secret"

func sign(t *testing.T, payload string, secret string, at time.Time) string {
	t.Helper()
	sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    secret,
		Timestamp: at,
	})
	return sp.Header
}

const completedPaid = `{
  "id": "evt_1",
  "object": "event",
  "type": "checkout.session.completed",
  "data": {"object": {"id": "cs_1", "object": "checkout.session", "payment_status": "paid", "metadata": {"order_id": "7"}}}
}`

func TestVerify_CompletedAndPaid(t *testing.T) {
	v := NewWebhookVerifier(testSecret, 0)

	c, err := v.Verify([]byte(completedPaid), sign(t, completedPaid, testSecret, time.Now()))

	require.NoError(t, err)
	assert.Equal(t, Confirmation{
		EventID:   "evt_1",
		EventType: EventCheckoutCompleted,
		SessionID: "cs_1",
		OrderRef:  "7",
		Paid:      true,
	}, c)
}

func TestVerify_CompletedButUnpaid(t *testing.T) {
	payload := `{"id":"evt_2","object":"event","type":"checkout.session.completed",
	  "data":{"object":{"id":"cs_2","object":"checkout.session","payment_status":"unpaid","metadata":{"order_id":"7"}}}}`
	v := NewWebhookVerifier(testSecret, 0)

	c, err := v.Verify([]byte(payload), sign(t, payload, testSecret, time.Now()))

	require.NoError(t, err)
	assert.False(t, c.Paid)
	assert.Equal(t, "7", c.OrderRef)
}

func TestVerify_AsyncPaymentSucceeded(t *testing.T) {
	payload := `{"id":"evt_3","object":"event","type":"checkout.session.async_payment_succeeded",
	  "data":{"object":{"id":"cs_3","object":"checkout.session","payment_status":"paid","metadata":{"order_id":"9"}}}}`
	v := NewWebhookVerifier(testSecret, 0)

	c, err := v.Verify([]byte(payload), sign(t, payload, testSecret, time.Now()))

	require.NoError(t, err)
	assert.True(t, c.Paid)
	assert.Equal(t, "9", c.OrderRef)
}

func TestVerify_OtherEventTypesAreNotPayments(t *testing.T) {
	payload := `{"id":"evt_4","object":"event","type":"payment_intent.created","data":{"object":{"id":"pi_1","object":"payment_intent"}}}`
	v := NewWebhookVerifier(testSecret, 0)

	c, err := v.Verify([]byte(payload), sign(t, payload, testSecret, time.Now()))

	require.NoError(t, err)
	assert.False(t, c.Paid)
	assert.Equal(t, "evt_4", c.EventID)
	assert.Empty(t, c.OrderRef)
}

func TestVerify_RejectsBadSignatures(t *testing.T) {
	v := NewWebhookVerifier(testSecret, time.Minute)
	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong secret", sign(t, completedPaid, "whsec_other", time.Now())},
		{"expired timestamp", sign(t, completedPaid, testSecret, time.Now().Add(-time.Hour))},
		{"garbage", "t=1,v1=deadbeef"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify([]byte(completedPaid), tt.header)
			assert.ErrorIs(t, err, ErrInvalidSignature)
		})
	}
}

func TestVerify_RejectsTamperedPayload(t *testing.T) {
	v := NewWebhookVerifier(testSecret, 0)
	header := sign(t, completedPaid, testSecret, time.Now())
	tampered := []byte(`{"id":"evt_1","object":"event","type":"checkout.session.completed","data":{"object":{"id":"cs_1","object":"checkout.session","payment_status":"paid","metadata":{"order_id":"8"}}}}`)

	_, err := v.Verify(tampered, header)

	assert.ErrorIs(t, err, ErrInvalidSignature)
}
