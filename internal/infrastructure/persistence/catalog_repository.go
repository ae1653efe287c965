package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/erp/stocksync/internal/domain/catalog"
	"github.com/erp/stocksync/internal/infrastructure/persistence/models"
)

// GormCatalogRepository implements catalog.StockRepository and
// catalog.ProductRepository using GORM
type GormCatalogRepository struct {
	db *gorm.DB
}

// NewGormCatalogRepository creates a new GormCatalogRepository
func NewGormCatalogRepository(db *gorm.DB) *GormCatalogRepository {
	return &GormCatalogRepository{db: db}
}

// FindProductIDBySku resolves sku against variant references first, then
// product references. The reference is always passed as a bind parameter.
func (r *GormCatalogRepository) FindProductIDBySku(ctx context.Context, sku string) (uuid.UUID, error) {
	var variant models.ProductVariantModel
	err := r.db.WithContext(ctx).
		Select("product_id").
		Where("reference = ?", sku).
		Take(&variant).Error
	if err == nil {
		return variant.ProductID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return uuid.Nil, err
	}

	var product models.ProductModel
	err = r.db.WithContext(ctx).
		Select("id").
		Where("reference = ?", sku).
		Take(&product).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return uuid.Nil, catalog.ErrSkuNotFound
		}
		return uuid.Nil, err
	}
	return product.ID, nil
}

// SetQuantity upserts the default-context stock row of productID
func (r *GormCatalogRepository) SetQuantity(ctx context.Context, productID uuid.UUID, quantity int64) error {
	model := models.StockAvailableModel{
		ProductID: productID,
		VariantID: uuid.Nil,
		Quantity:  quantity,
		UpdatedAt: time.Now(),
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "product_id"}, {Name: "variant_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"quantity", "updated_at"}),
		}).
		Create(&model).Error
}

// Save creates or updates a product
func (r *GormCatalogRepository) Save(ctx context.Context, product *catalog.Product) error {
	model := &models.ProductModel{}
	model.FromDomain(product)
	return r.db.WithContext(ctx).Save(model).Error
}

// SaveVariant creates or updates a product variant
func (r *GormCatalogRepository) SaveVariant(ctx context.Context, variant *catalog.ProductVariant) error {
	model := &models.ProductVariantModel{}
	model.FromDomain(variant)
	return r.db.WithContext(ctx).Save(model).Error
}

// FindStockLevel returns the default-context stock level of productID
func (r *GormCatalogRepository) FindStockLevel(ctx context.Context, productID uuid.UUID) (*catalog.StockLevel, error) {
	var model models.StockAvailableModel
	err := r.db.WithContext(ctx).
		Where("product_id = ? AND variant_id = ?", productID, uuid.Nil).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, catalog.ErrStockNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

var (
	_ catalog.StockRepository   = (*GormCatalogRepository)(nil)
	_ catalog.ProductRepository = (*GormCatalogRepository)(nil)
)
