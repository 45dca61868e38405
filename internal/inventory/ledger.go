package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var ErrSkuNotFound = errors.New("sku not found")

// ErrOutOfStock is matched by every *OutOfStockError via errors.Is.
var ErrOutOfStock = errors.New("out of stock")

// OutOfStockError reports how much was asked for and how much was left
// when the reservation was attempted.
type OutOfStockError struct {
	SKU       string
	Requested int
	Available int
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("out of stock: sku=%s requested=%d available=%d", e.SKU, e.Requested, e.Available)
}

func (e *OutOfStockError) Is(target error) bool { return target == ErrOutOfStock }

type Product struct {
	ID       int64
	Name     string
	Price    decimal.Decimal
	ImageURL string
	Color    string
}

type Variant struct {
	ID        int64
	ProductID int64
	Size      string
	Stock     int
	SKU       string
}

// Reservation is the result of a successful stock decrement. Product is the
// parent product as it was read while the variant row was held.
type Reservation struct {
	SKU       string
	Quantity  int
	Remaining int
	Variant   Variant
	Product   Product
}

// Ledger owns the per-variant stock counters. Reserve must be atomic per
// SKU: of two concurrent reservations racing for the last units exactly one
// succeeds and the other gets an *OutOfStockError.
type Ledger interface {
	Reserve(ctx context.Context, sku string, qty int) (Reservation, error)
	Release(ctx context.Context, sku string, qty int) error
}
