package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/erp/stocksync/internal/domain/catalog"
)

// ProductModel is the persistence model for catalog.Product
type ProductModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	Reference string    `gorm:"type:varchar(64);not null;index:idx_products_reference"`
	Name      string    `gorm:"type:varchar(255);not null"`
	Active    bool      `gorm:"not null;default:true"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ProductModel) TableName() string {
	return "products"
}

// ToDomain converts the persistence model to a domain Product
func (m *ProductModel) ToDomain() *catalog.Product {
	return &catalog.Product{
		ID:        m.ID,
		Reference: m.Reference,
		Name:      m.Name,
		Active:    m.Active,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain Product
func (m *ProductModel) FromDomain(p *catalog.Product) {
	m.ID = p.ID
	m.Reference = p.Reference
	m.Name = p.Name
	m.Active = p.Active
	m.CreatedAt = p.CreatedAt
	m.UpdatedAt = p.UpdatedAt
}

// ProductVariantModel is the persistence model for catalog.ProductVariant
type ProductVariantModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	ProductID uuid.UUID `gorm:"type:uuid;not null;index"`
	Reference string    `gorm:"type:varchar(64);not null;index:idx_product_variants_reference"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ProductVariantModel) TableName() string {
	return "product_variants"
}

// ToDomain converts the persistence model to a domain ProductVariant
func (m *ProductVariantModel) ToDomain() *catalog.ProductVariant {
	return &catalog.ProductVariant{
		ID:        m.ID,
		ProductID: m.ProductID,
		Reference: m.Reference,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain ProductVariant
func (m *ProductVariantModel) FromDomain(v *catalog.ProductVariant) {
	m.ID = v.ID
	m.ProductID = v.ProductID
	m.Reference = v.Reference
	m.CreatedAt = v.CreatedAt
	m.UpdatedAt = v.UpdatedAt
}

// StockAvailableModel holds the sellable quantity per product and variant.
// The default context uses the nil UUID as variant so the pair stays unique.
type StockAvailableModel struct {
	ProductID uuid.UUID `gorm:"type:uuid;primaryKey"`
	VariantID uuid.UUID `gorm:"type:uuid;primaryKey"`
	Quantity  int64     `gorm:"not null;default:0"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (StockAvailableModel) TableName() string {
	return "stock_available"
}

// ToDomain converts the persistence model to a domain StockLevel
func (m *StockAvailableModel) ToDomain() *catalog.StockLevel {
	return &catalog.StockLevel{
		ProductID: m.ProductID,
		VariantID: m.VariantID,
		Quantity:  m.Quantity,
		UpdatedAt: m.UpdatedAt,
	}
}
