package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/erp/stocksync/internal/infrastructure/logger"
	"github.com/erp/stocksync/internal/interfaces/http/handler"
	"github.com/erp/stocksync/internal/interfaces/http/middleware"
)

// EngineConfig holds the HTTP engine settings
type EngineConfig struct {
	ServiceName    string
	Tracing        bool
	CORS           middleware.CORSConfig
	MaxBodySize    int64
	TrustedProxies []string
}

// Dependencies are the handlers and collaborators the routes need
type Dependencies struct {
	Sync    *handler.SyncHandler
	System  *handler.SystemHandler
	CronKey middleware.KeyVerifier
	Metrics http.Handler
	Logger  *zap.Logger
}

// NewEngine builds the gin engine with the middleware stack and every route.
//
// Middleware order: request ID, recovery, tracing, request logging, security
// headers, CORS, body limit.
func NewEngine(cfg EngineConfig, deps Dependencies) (*gin.Engine, error) {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if err := middleware.SetupValidator(); err != nil {
		return nil, err
	}

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, err
	}

	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(middleware.Tracing(middleware.TracingConfig{
		ServiceName: cfg.ServiceName,
		Enabled:     cfg.Tracing,
	})...)
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.Secure())
	engine.Use(middleware.CORSWithConfig(cfg.CORS))
	engine.Use(middleware.BodyLimit(cfg.MaxBodySize))

	r := NewRouter(engine)

	system := NewDomainGroup("system", "")
	system.GET("/health", deps.System.Health)
	if deps.Metrics != nil {
		system.GET("/metrics", gin.WrapH(deps.Metrics))
	}
	sys := system.Group("system-info", "/system")
	sys.GET("/ping", deps.System.Ping)
	sys.GET("/info", deps.System.GetSystemInfo)
	r.RegisterRoot(system)

	trigger := NewDomainGroup("trigger", "/sync").
		Use(deps.Sync.RequireEnabled, middleware.CronKeyAuthPlain(deps.CronKey, log))
	trigger.Match([]string{http.MethodGet, http.MethodPost}, "", deps.Sync.Trigger)
	r.RegisterRoot(trigger)

	admin := NewDomainGroup("admin", "").Use(middleware.CronKeyAuth(deps.CronKey, log))
	syncRoutes := admin.Group("sync", "/sync")
	syncRoutes.GET("/status", deps.Sync.GetStatus)
	syncRoutes.POST("/run", deps.Sync.RunSync)
	settings := admin.Group("settings", "/settings")
	settings.PUT("/api-key", deps.Sync.SetAPIKey)
	settings.GET("/cron", deps.Sync.GetCronSettings)
	r.Register(admin)

	r.Setup()
	return engine, nil
}
