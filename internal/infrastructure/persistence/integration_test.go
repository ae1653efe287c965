//go:build integration

package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/erp/stocksync/internal/domain/catalog"
	"github.com/erp/stocksync/internal/domain/integration"
	"github.com/erp/stocksync/internal/infrastructure/migration"
	"github.com/erp/stocksync/migrations"
)

// newPostgresDB starts a throwaway PostgreSQL container and applies the
// embedded migrations.
func newPostgresDB(t *testing.T) *gorm.DB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("stocksync_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Warning: Failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := gorm.Open(gormpostgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	m, err := migration.New(sqlDB, migrations.FS, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, m.Up())

	return db
}

func TestPostgres_StockSyncTables(t *testing.T) {
	db := newPostgresDB(t)
	ctx := context.Background()
	repo := NewGormCatalogRepository(db)

	product, err := catalog.NewProduct("PG-SKU", "Postgres product")
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, product))

	variant, err := catalog.NewProductVariant(product.ID, "PG-SKU-XL")
	require.NoError(t, err)
	require.NoError(t, repo.SaveVariant(ctx, variant))

	id, err := repo.FindProductIDBySku(ctx, "PG-SKU-XL")
	require.NoError(t, err)
	assert.Equal(t, product.ID, id)

	_, err = repo.FindProductIDBySku(ctx, `PG-SKU' OR '1'='1`)
	assert.ErrorIs(t, err, catalog.ErrSkuNotFound)

	require.NoError(t, repo.SetQuantity(ctx, product.ID, 7))
	require.NoError(t, repo.SetQuantity(ctx, product.ID, 3))
	level, err := repo.FindStockLevel(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), level.Quantity)

	assert.Error(t, repo.SetQuantity(ctx, uuid.New(), 1), "foreign key must reject unknown products")

	cfg := NewGormConfigurationRepository(db)
	require.NoError(t, cfg.Set(ctx, integration.ConfigKeyCronKey, "abc"))
	value, err := cfg.Get(ctx, integration.ConfigKeyCronKey)
	require.NoError(t, err)
	assert.Equal(t, "abc", value)
}
