package payment

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
)

// MetadataOrderID is the session metadata key carrying the order id. The
// webhook reads it back to find the order.
const MetadataOrderID = "order_id"

type LineItem struct {
	Name       string
	UnitAmount int64 // minor currency units
	Quantity   int64
}

type SessionRequest struct {
	OrderID    string
	Currency   string
	Items      []LineItem
	SuccessURL string
	CancelURL  string
}

// StripeGateway creates hosted checkout sessions. It holds its own API
// client instead of setting the package-level stripe.Key.
type StripeGateway struct {
	api *client.API
}

func NewStripeGateway(secretKey string, backends *stripe.Backends) *StripeGateway {
	api := &client.API{}
	api.Init(secretKey, backends)
	return &StripeGateway{api: api}
}

func (g *StripeGateway) CreateSession(ctx context.Context, req SessionRequest) (string, error) {
	params := sessionParams(req)
	params.Context = ctx
	s, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	return s.URL, nil
}

func sessionParams(req SessionRequest) *stripe.CheckoutSessionParams {
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
	}
	for _, it := range req.Items {
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(it.Quantity),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(req.Currency),
				UnitAmount: stripe.Int64(it.UnitAmount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(it.Name),
				},
			},
		})
	}
	params.AddMetadata(MetadataOrderID, req.OrderID)
	params.PaymentIntentData = &stripe.CheckoutSessionPaymentIntentDataParams{
		Metadata: map[string]string{MetadataOrderID: req.OrderID},
	}
	return params
}
