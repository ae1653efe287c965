package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/erp/stocksync/internal/infrastructure/scheduler"
	"github.com/erp/stocksync/internal/interfaces/http/handler"
	"github.com/erp/stocksync/internal/interfaces/http/middleware"
	"github.com/erp/stocksync/internal/interfaces/http/router"
)

const defaultGracefulTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP trigger and the interval scheduler",
		Long: `Start the HTTP server that exposes the cron trigger (/sync), the admin API
and the health and metrics endpoints. When scheduler.enabled is set the
service also synchronizes on a fixed interval.`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("Starting stocksync",
		zap.String("version", Version),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port))

	st, err := buildStack(ctx, cfg, log)
	if err != nil {
		log.Error("Startup failed", zap.Error(err))
		return err
	}
	log = st.logger
	defer st.close(context.Background())

	if generated, err := st.service.EnsureCronKey(ctx); err != nil {
		return fmt.Errorf("failed to initialize cron key: %w", err)
	} else if generated {
		log.Info("Cron key initialized; fetch it from /api/v1/settings/cron")
	}

	if cfg.Scheduler.Enabled {
		trigger, err := scheduler.NewStockSyncTrigger(scheduler.StockSyncTriggerConfig{
			Interval:   cfg.Scheduler.Interval,
			RunOnStart: cfg.Scheduler.RunOnStart,
			JobTimeout: cfg.Scheduler.JobTimeout,
		}, st.service, log)
		if err != nil {
			return err
		}
		if err := trigger.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), defaultGracefulTimeout)
			defer cancel()
			if err := trigger.Stop(stopCtx); err != nil {
				log.Error("Error stopping scheduler", zap.Error(err))
			}
		}()
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	engine, err := router.NewEngine(router.EngineConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Tracing:     cfg.Telemetry.Enabled,
		CORS: middleware.CORSConfig{
			AllowOrigins:  cfg.HTTP.CORSAllowOrigins,
			AllowMethods:  cfg.HTTP.CORSAllowMethods,
			AllowHeaders:  cfg.HTTP.CORSAllowHeaders,
			ExposeHeaders: []string{middleware.RequestIDHeader},
			MaxAge:        12 * time.Hour,
		},
		MaxBodySize:    cfg.HTTP.MaxBodySize,
		TrustedProxies: cfg.HTTP.TrustedProxies,
	}, router.Dependencies{
		Sync:    handler.NewSyncHandler(st.service, cfg.App.PublicURL, log,
			handler.WithRunTimeout(cfg.Scheduler.JobTimeout)),
		System:  handler.NewSystemHandler(cfg.App.Name, Version, st.healthChecks(), log),
		CronKey: st.service,
		Metrics: st.meter.Handler(),
		Logger:  log,
	})
	if err != nil {
		return fmt.Errorf("failed to build HTTP engine: %w", err)
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down server...")
	case err := <-serveErr:
		if err != nil {
			log.Error("Server failed", zap.Error(err))
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultGracefulTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
	return nil
}
