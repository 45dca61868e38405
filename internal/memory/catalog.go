package memory

import (
	"context"
	"sync"

	"github.com/ariefcatur/storefront-fulfillment/internal/inventory"
	"github.com/shopspring/decimal"
)

type variantEntry struct {
	mu sync.Mutex
	v  inventory.Variant
}

// Catalog is an in-process inventory.Ledger. Each variant has its own mutex;
// the map lock is only held to look entries up.
type Catalog struct {
	mu       sync.RWMutex
	products map[int64]inventory.Product
	variants map[string]*variantEntry
	nextID   int64
}

func NewCatalog() *Catalog {
	return &Catalog{
		products: make(map[int64]inventory.Product),
		variants: make(map[string]*variantEntry),
	}
}

func (c *Catalog) AddProduct(name string, price decimal.Decimal, imageURL, color string) inventory.Product {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	p := inventory.Product{ID: c.nextID, Name: name, Price: price, ImageURL: imageURL, Color: color}
	c.products[p.ID] = p
	return p
}

// UpdateProduct replaces name and price, the way an admin edit would.
func (c *Catalog) UpdateProduct(id int64, name string, price decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.products[id]
	if !ok {
		return
	}
	p.Name = name
	p.Price = price
	c.products[id] = p
}

func (c *Catalog) AddVariant(productID int64, size, sku string, stock int) inventory.Variant {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	v := inventory.Variant{ID: c.nextID, ProductID: productID, Size: size, Stock: stock, SKU: sku}
	c.variants[sku] = &variantEntry{v: v}
	return v
}

func (c *Catalog) DeleteVariant(sku string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.variants, sku)
}

// Stock returns the current counter for sku, or -1 if it does not exist.
func (c *Catalog) Stock(sku string) int {
	e := c.entry(sku)
	if e == nil {
		return -1
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.v.Stock
}

func (c *Catalog) entry(sku string) *variantEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.variants[sku]
}

func (c *Catalog) product(id int64) inventory.Product {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.products[id]
}

func (c *Catalog) Reserve(ctx context.Context, sku string, qty int) (inventory.Reservation, error) {
	if err := ctx.Err(); err != nil {
		return inventory.Reservation{}, err
	}
	e := c.entry(sku)
	if e == nil {
		return inventory.Reservation{}, inventory.ErrSkuNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.v.Stock < qty {
		return inventory.Reservation{}, &inventory.OutOfStockError{SKU: sku, Requested: qty, Available: e.v.Stock}
	}
	e.v.Stock -= qty
	return inventory.Reservation{
		SKU:       sku,
		Quantity:  qty,
		Remaining: e.v.Stock,
		Variant:   e.v,
		Product:   c.product(e.v.ProductID),
	}, nil
}

func (c *Catalog) Release(ctx context.Context, sku string, qty int) error {
	e := c.entry(sku)
	if e == nil {
		return inventory.ErrSkuNotFound
	}
	e.mu.Lock()
	e.v.Stock += qty
	e.mu.Unlock()
	return nil
}
