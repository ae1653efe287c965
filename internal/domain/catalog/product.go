package catalog

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidReference = errors.New("catalog: reference cannot be empty")
	ErrInvalidName      = errors.New("catalog: product name cannot be empty")
	ErrInvalidProductID = errors.New("catalog: invalid product ID")
	ErrSkuNotFound      = errors.New("catalog: no product or variant with this reference")
	ErrStockNotFound    = errors.New("catalog: no stock level for this product")
)

const maxReferenceLength = 64

// Product is a sellable catalog item
type Product struct {
	ID        uuid.UUID
	Reference string
	Name      string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewProduct creates an active product
func NewProduct(reference, name string) (*Product, error) {
	reference, err := normalizeReference(reference)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidName
	}

	now := time.Now()
	return &Product{
		ID:        uuid.New(),
		Reference: reference,
		Name:      name,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// ProductVariant is a combination of a product (size, colour, ...) with its own reference
type ProductVariant struct {
	ID        uuid.UUID
	ProductID uuid.UUID
	Reference string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewProductVariant creates a variant of productID
func NewProductVariant(productID uuid.UUID, reference string) (*ProductVariant, error) {
	if productID == uuid.Nil {
		return nil, ErrInvalidProductID
	}
	reference, err := normalizeReference(reference)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	return &ProductVariant{
		ID:        uuid.New(),
		ProductID: productID,
		Reference: reference,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// StockLevel is the sellable quantity of a product.
// VariantID is uuid.Nil for the default (product-level) stock context.
type StockLevel struct {
	ProductID uuid.UUID
	VariantID uuid.UUID
	Quantity  int64
	UpdatedAt time.Time
}

// IsDefaultContext reports whether the level applies to the product as a whole.
func (s StockLevel) IsDefaultContext() bool {
	return s.VariantID == uuid.Nil
}

// References are matched exactly, so only surrounding whitespace is removed.
func normalizeReference(reference string) (string, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" || len(reference) > maxReferenceLength {
		return "", ErrInvalidReference
	}
	return reference, nil
}
