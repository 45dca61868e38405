package orders

import (
	"fmt"
	"net/mail"
	"strings"
)

const (
	GuestEmailSentinel = "guest@example.com"
	emailMaxLength     = 255
)

type ItemInput struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
	Size     string `json:"size,omitempty"`
}

type CreateOrderRequest struct {
	GuestEmail string      `json:"guest_email"`
	CustomerID string      `json:"-"`
	Items      []ItemInput `json:"items"`
}

// ValidationError is a user-correctable input problem. Nothing has been
// reserved or written when it is returned.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// NormalizeEmail trims and lower-cases an address so that comparisons do not
// drift on case or whitespace.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// normalize validates req and returns a copy with trimmed SKUs and the
// resolved guest email.
func normalize(req CreateOrderRequest) (CreateOrderRequest, error) {
	out := CreateOrderRequest{CustomerID: strings.TrimSpace(req.CustomerID)}

	email := NormalizeEmail(req.GuestEmail)
	switch {
	case email == "":
		email = GuestEmailSentinel
	case len(email) > emailMaxLength:
		return out, &ValidationError{Field: "guest_email", Message: "too long"}
	default:
		addr, err := mail.ParseAddress(email)
		if err != nil || addr.Address != email {
			return out, &ValidationError{Field: "guest_email", Message: "not a valid email address"}
		}
	}
	out.GuestEmail = email

	if len(req.Items) == 0 {
		return out, &ValidationError{Field: "items", Message: "order must contain at least one item"}
	}
	out.Items = make([]ItemInput, 0, len(req.Items))
	for i, it := range req.Items {
		sku := strings.TrimSpace(it.SKU)
		if sku == "" {
			return out, &ValidationError{Field: fmt.Sprintf("items[%d].sku", i), Message: "sku is required"}
		}
		if it.Quantity < 1 {
			return out, &ValidationError{Field: fmt.Sprintf("items[%d].quantity", i), Message: "quantity must be at least 1"}
		}
		out.Items = append(out.Items, ItemInput{SKU: sku, Quantity: it.Quantity, Size: strings.TrimSpace(it.Size)})
	}
	return out, nil
}
