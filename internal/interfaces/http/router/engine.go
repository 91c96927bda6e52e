package router

import (
	"net/http"

	"github.com/escrowhub/backend/internal/infrastructure/config"
	"github.com/escrowhub/backend/internal/infrastructure/logger"
	"github.com/escrowhub/backend/internal/interfaces/http/dto"
	"github.com/escrowhub/backend/internal/interfaces/http/handler"
	"github.com/escrowhub/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// EngineConfig holds what the global middleware stack needs
type EngineConfig struct {
	HTTP     config.HTTPConfig
	Logger   *zap.Logger
	Tracing  middleware.TracingConfig
	Metrics  middleware.HTTPMetricsConfig
	Security middleware.SecurityConfig
}

// NewEngine builds a gin engine with the global middleware stack applied in order:
//  1. Recovery - catch panics
//  2. RequestID - generate/propagate request ID
//  3. Logger - request logging with the request scoped zap logger
//  4. CORS and security headers
//  5. BodyLimit - limit request body size
//  6. Tracing - server span, request attributes, error status
//  7. HTTPMetrics - request counters and latency
func NewEngine(cfg EngineConfig) *gin.Engine {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	} else {
		_ = engine.SetTrustedProxies(nil)
	}

	engine.Use(logger.Recovery(log))
	engine.Use(middleware.RequestID())
	engine.Use(logger.AccessLog(log, logger.WithSkipPaths("/health")))
	engine.Use(middleware.CORS(cfg.HTTP))
	engine.Use(middleware.SecureWithConfig(cfg.Security))
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize,
		middleware.WithRouteLimit(StripeWebhookPath, handler.MaxWebhookPayloadSize)))
	engine.Use(middleware.TracingWithConfig(cfg.Tracing))
	engine.Use(middleware.TracingAttributeInjector())
	engine.Use(middleware.SpanErrorMarker())
	engine.Use(middleware.HTTPMetrics(cfg.Metrics))

	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, dto.Failure(
			dto.ErrCodeRouteNotFound, "Route not found", c.GetString("request_id")))
	})

	return engine
}
