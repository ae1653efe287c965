package persistence

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/erp/stocksync/internal/domain/integration"
	"github.com/erp/stocksync/internal/infrastructure/persistence/models"
)

// GormConfigurationRepository stores module settings in the configuration table
type GormConfigurationRepository struct {
	db *gorm.DB
}

// NewGormConfigurationRepository creates a new GormConfigurationRepository
func NewGormConfigurationRepository(db *gorm.DB) *GormConfigurationRepository {
	return &GormConfigurationRepository{db: db}
}

// Get returns the stored value of key, or "" when it was never set
func (r *GormConfigurationRepository) Get(ctx context.Context, key string) (string, error) {
	var model models.ConfigurationModel
	err := r.db.WithContext(ctx).Where("name = ?", key).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return model.Value, nil
}

// Set stores value under key, replacing any previous value
func (r *GormConfigurationRepository) Set(ctx context.Context, key, value string) error {
	model := models.ConfigurationModel{
		Name:      key,
		Value:     value,
		UpdatedAt: time.Now(),
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&model).Error
}

// LayeredConfigProvider reads settings from the store and falls back to
// static values (environment or config file) for keys the store lacks.
// Writes always go to the store.
type LayeredConfigProvider struct {
	store    integration.ConfigProvider
	defaults map[string]string
}

// NewLayeredConfigProvider creates a provider over store with fallback defaults
func NewLayeredConfigProvider(store integration.ConfigProvider, defaults map[string]string) *LayeredConfigProvider {
	return &LayeredConfigProvider{store: store, defaults: defaults}
}

// Get implements integration.ConfigProvider
func (p *LayeredConfigProvider) Get(ctx context.Context, key string) (string, error) {
	value, err := p.store.Get(ctx, key)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(value) != "" {
		return value, nil
	}
	return p.defaults[key], nil
}

// Set implements integration.ConfigProvider
func (p *LayeredConfigProvider) Set(ctx context.Context, key, value string) error {
	return p.store.Set(ctx, key, value)
}

var (
	_ integration.ConfigProvider = (*GormConfigurationRepository)(nil)
	_ integration.ConfigProvider = (*LayeredConfigProvider)(nil)
)
