package catalog

import (
	"context"

	"github.com/google/uuid"
)

// StockRepository resolves SKUs and writes sellable quantities
type StockRepository interface {
	// FindProductIDBySku resolves a reference to its product. Variant references
	// take precedence over product references. Returns ErrSkuNotFound when
	// nothing matches.
	FindProductIDBySku(ctx context.Context, sku string) (uuid.UUID, error)

	// SetQuantity stores quantity as the product's default-context stock level
	SetQuantity(ctx context.Context, productID uuid.UUID, quantity int64) error
}

// ProductRepository persists catalog products and variants
type ProductRepository interface {
	// Save creates or updates a product
	Save(ctx context.Context, product *Product) error

	// SaveVariant creates or updates a product variant
	SaveVariant(ctx context.Context, variant *ProductVariant) error

	// FindStockLevel returns the default-context stock level of a product,
	// or ErrStockNotFound
	FindStockLevel(ctx context.Context, productID uuid.UUID) (*StockLevel, error)
}
