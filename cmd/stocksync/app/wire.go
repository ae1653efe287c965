package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	appintegration "github.com/erp/stocksync/internal/application/integration"
	"github.com/erp/stocksync/internal/domain/integration"
	"github.com/erp/stocksync/internal/infrastructure/cache"
	"github.com/erp/stocksync/internal/infrastructure/config"
	"github.com/erp/stocksync/internal/infrastructure/ecommerce"
	"github.com/erp/stocksync/internal/infrastructure/lock"
	"github.com/erp/stocksync/internal/infrastructure/logger"
	"github.com/erp/stocksync/internal/infrastructure/persistence"
	"github.com/erp/stocksync/internal/infrastructure/ratelimit"
	"github.com/erp/stocksync/internal/infrastructure/telemetry"
	"github.com/erp/stocksync/internal/interfaces/http/handler"
)

// rateLimitName names the shared KeyCRM request window in Redis
const rateLimitName = "keycrm"

// stack holds the long-lived components shared by serve and run
type stack struct {
	cfg     *config.Config
	logger  *zap.Logger
	logs    *telemetry.LoggerProvider
	tracer  *telemetry.TracerProvider
	meter   *telemetry.MeterProvider
	db      *persistence.Database
	redis   *redis.Client
	service *appintegration.StockSyncService

	closers []func(context.Context) error
}

// loadConfig reads the --config flag and loads the configuration
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, fmt.Errorf("failed to get config flag: %w", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return log.With(zap.String("service", cfg.App.Name)), nil
}

// buildStack connects every backing service and assembles the sync service.
// Components log through st.logger, which also exports over OTLP when
// telemetry.logs_enabled is set. On error the components created so far are closed.
func buildStack(ctx context.Context, cfg *config.Config, log *zap.Logger) (_ *stack, err error) {
	st := &stack{cfg: cfg, logger: log}
	defer func() {
		if err != nil {
			st.close(context.Background())
		}
	}()

	if st.logs, err = telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.Enabled && cfg.Telemetry.LogsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    Version,
		Insecure:          cfg.Telemetry.Insecure,
	}, log); err != nil {
		return nil, err
	}
	st.closers = append(st.closers, st.logs.Shutdown)
	st.logger = st.logs.Bridge(log)
	log = st.logger

	if st.tracer, err = telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    Version,
		Insecure:          cfg.Telemetry.Insecure,
	}, log); err != nil {
		return nil, err
	}
	st.closers = append(st.closers, st.tracer.Shutdown)

	if st.meter, err = telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		PrometheusEnabled: cfg.Telemetry.PrometheusEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.MetricsInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    Version,
		Insecure:          cfg.Telemetry.Insecure,
	}, log); err != nil {
		return nil, err
	}
	st.closers = append(st.closers, st.meter.Shutdown)

	if err = st.connectDatabase(ctx); err != nil {
		return nil, err
	}

	if cfg.Redis.Enabled {
		if st.redis, err = cache.NewRedisClient(ctx, cfg.Redis, cache.WithLogger(log)); err != nil {
			return nil, err
		}
		st.closers = append(st.closers, func(context.Context) error { return st.redis.Close() })
		log.Info("Redis connected", zap.String("addr", cfg.Redis.Addr()))
	}

	fetcher, err := st.newFetcher()
	if err != nil {
		return nil, err
	}

	locker, err := lock.NewFactory(cfg.Lock,
		lock.WithLogger(log),
		lock.WithRedis(st.redis, cfg.Redis.KeyPrefix),
	).Create()
	if err != nil {
		return nil, fmt.Errorf("failed to create run lock: %w", err)
	}

	metrics, err := telemetry.NewSyncMetrics(st.meter.Meter("github.com/erp/stocksync"))
	if err != nil {
		return nil, fmt.Errorf("failed to create sync metrics: %w", err)
	}

	settings := persistence.NewLayeredConfigProvider(
		persistence.NewGormConfigurationRepository(st.db.DB),
		map[string]string{
			integration.ConfigKeyAPIKey:  cfg.KeyCRM.APIKey,
			integration.ConfigKeyCronKey: cfg.KeyCRM.CronKey,
		},
	)

	st.service = appintegration.NewStockSyncService(
		fetcher,
		persistence.NewGormCatalogRepository(st.db.DB),
		settings,
		locker,
		appintegration.WithSyncLogger(log),
		appintegration.WithSyncMetrics(metrics),
		appintegration.WithSyncEnabled(cfg.Sync.Enabled),
		appintegration.WithClampNegativeStock(cfg.Sync.ClampNegativeStock),
	)
	return st, nil
}

func (st *stack) connectDatabase(ctx context.Context) error {
	cfg := st.cfg
	gormLog := logger.NewGormLogger(st.logger, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh))

	db, err := persistence.NewDatabase(ctx, &cfg.Database,
		persistence.WithGormLogger(gormLog),
		persistence.WithRetryLogger(st.logger),
	)
	if err != nil {
		return err
	}
	st.db = db
	st.closers = append(st.closers, func(context.Context) error { return db.Close() })

	tracing := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
		Enabled:         cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
	}, st.logger)
	if err := tracing.Register(db.DB); err != nil {
		return fmt.Errorf("failed to register database tracing: %w", err)
	}

	sqlDB, err := db.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	reg, err := telemetry.RegisterDBPoolMetrics(st.meter.Meter("github.com/erp/stocksync/db"), sqlDB)
	if err != nil {
		return fmt.Errorf("failed to register pool metrics: %w", err)
	}
	st.closers = append(st.closers, func(context.Context) error { return reg.Unregister() })

	st.logger.Info("Database connected",
		zap.String("host", cfg.Database.Host),
		zap.String("database", cfg.Database.DBName))
	return nil
}

func (st *stack) newFetcher() (*ecommerce.KeyCRMAdapter, error) {
	cfg := st.cfg
	opts := []ratelimit.Option{ratelimit.WithLogger(st.logger)}
	if cfg.KeyCRM.SharedRateLimit {
		opts = append(opts, ratelimit.WithStore(ratelimit.NewRedisWindowStore(
			st.redis, cfg.Redis.KeyPrefix, rateLimitName, cfg.KeyCRM.RateLimitWindow)))
	}
	limiter := ratelimit.NewFixedWindowLimiter(ratelimit.Config{
		Limit:  cfg.KeyCRM.RateLimitRequests,
		Window: cfg.KeyCRM.RateLimitWindow,
	}, opts...)

	adapter, err := ecommerce.NewKeyCRMAdapter(&ecommerce.KeyCRMConfig{
		BaseURL:        cfg.KeyCRM.BaseURL,
		PerPage:        cfg.KeyCRM.PerPage,
		TimeoutSeconds: cfg.KeyCRM.TimeoutSeconds,
	}, limiter, logger.ForModule(st.logger, "keycrm"))
	if err != nil {
		return nil, fmt.Errorf("invalid keycrm configuration: %w", err)
	}
	return adapter, nil
}

// healthChecks returns the dependency probes served on /health
func (st *stack) healthChecks() map[string]handler.HealthCheck {
	checks := map[string]handler.HealthCheck{
		"database": st.db.Ping,
	}
	if st.redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return st.redis.Ping(ctx).Err()
		}
	}
	return checks
}

// close releases components in reverse creation order
func (st *stack) close(ctx context.Context) {
	var errs []error
	for i := len(st.closers) - 1; i >= 0; i-- {
		if err := st.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		st.logger.Warn("Error during shutdown", zap.Error(err))
	}
	_ = st.logger.Sync()
}
