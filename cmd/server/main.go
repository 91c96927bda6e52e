package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	commissionapp "github.com/escrowhub/backend/internal/application/commission"
	escrowapp "github.com/escrowhub/backend/internal/application/escrow"
	eventapp "github.com/escrowhub/backend/internal/application/event"
	"github.com/escrowhub/backend/internal/domain/escrow"
	"github.com/escrowhub/backend/internal/domain/shared"
	"github.com/escrowhub/backend/internal/infrastructure/auth"
	"github.com/escrowhub/backend/internal/infrastructure/cache"
	"github.com/escrowhub/backend/internal/infrastructure/config"
	"github.com/escrowhub/backend/internal/infrastructure/event"
	"github.com/escrowhub/backend/internal/infrastructure/logger"
	"github.com/escrowhub/backend/internal/infrastructure/payment"
	"github.com/escrowhub/backend/internal/infrastructure/persistence"
	"github.com/escrowhub/backend/internal/infrastructure/scheduler"
	"github.com/escrowhub/backend/internal/infrastructure/telemetry"
	"github.com/escrowhub/backend/internal/interfaces/http/handler"
	"github.com/escrowhub/backend/internal/interfaces/http/middleware"
	"github.com/escrowhub/backend/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "dev"

//	@title			Escrow Engine API
//	@version		1.0
//	@description	Commission-sharing agreements with escrowed funds and milestone payouts

//	@BasePath	/api/v1

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Bearer token authentication. Format: "Bearer {token}"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(logger.FromConfig(cfg.Log), cfg.App.Name)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	rootCtx := context.Background()

	// Telemetry: traces, metrics and the zap -> OTLP log bridge share one collector
	telemetryCfg := telemetry.ConfigFrom(cfg.Telemetry)
	pipeline, err := telemetry.Start(rootCtx, telemetryCfg, log)
	if err != nil {
		log.Fatal("Failed to start telemetry", zap.Error(err))
	}
	log = pipeline.BridgeLogger(log, zapcore.InfoLevel)
	defer func() {
		_ = pipeline.Shutdown(context.Background())
		_ = logger.Sync(log)
	}()

	log.Info("Starting escrow engine",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	meter := pipeline.Meter(telemetry.TracerName)

	// Database
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithRedactedValues(cfg.App.IsProduction()),
	)
	db, err := persistence.Connect(rootCtx, cfg.Database, persistence.WithGormLogger(gormLog))
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()

	dbTracingCfg := telemetry.DefaultDBTracingConfig()
	dbTracingCfg.Enabled = cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled
	dbTracingCfg.LogFullSQL = !cfg.App.IsProduction()
	dbPlugin, err := telemetry.NewDBTracingPlugin(dbTracingCfg, meter, log)
	if err != nil {
		log.Fatal("Failed to create database instrumentation", zap.Error(err))
	}
	if err := dbPlugin.Register(db.DB); err != nil {
		log.Fatal("Failed to register database instrumentation", zap.Error(err))
	}
	if pipeline.Enabled() {
		sqlDB, err := db.SQL()
		if err != nil {
			log.Fatal("Failed to get sql.DB", zap.Error(err))
		}
		registration, err := telemetry.RegisterPoolMetrics(meter, sqlDB)
		if err != nil {
			log.Warn("Failed to register connection pool metrics", zap.Error(err))
		} else {
			defer func() { _ = registration.Unregister() }()
		}
	}
	log.Info("Database connected successfully")

	// Outbox: aggregates and their events commit together
	eventSerializer := event.NewEventSerializer()
	event.RegisterAllEvents(eventSerializer)
	outboxPublisher := event.NewOutboxPublisher(eventSerializer, event.WithMaxRetries(cfg.Event.MaxRetries))
	outboxRepo := event.NewGormOutboxRepository(db.DB)

	agreementRepo := persistence.NewGormAgreementRepository(db, outboxPublisher)
	accountRepo := persistence.NewGormEscrowAccountRepository(db, outboxPublisher)

	// Idempotency store: redis when reachable, in-memory otherwise
	idempotencyStore, err := cache.OpenIdempotencyStore(rootCtx, cfg.Redis, cache.StoreOptions{
		Logger:       log,
		RequireRedis: cfg.App.IsProduction(),
	})
	if err != nil {
		log.Fatal("Failed to create idempotency store", zap.Error(err))
	}
	defer func() {
		if err := idempotencyStore.Close(); err != nil {
			log.Error("Error closing idempotency store", zap.Error(err))
		}
	}()

	// Payment rail
	gateway, err := payment.NewStripeGateway(cfg.Stripe, log)
	if err != nil {
		log.Fatal("Failed to initialize Stripe gateway", zap.Error(err))
	}

	autoApprove, dispute, threshold, err := cfg.Payout.Ratios()
	if err != nil {
		log.Fatal("Invalid payout policy", zap.Error(err))
	}
	payoutService := escrow.NewPayoutService(escrow.PayoutPolicy{
		AutoApproveRatio: autoApprove,
		DisputeRatio:     dispute,
		DisputeThreshold: threshold,
	})

	escrowMetrics, err := telemetry.NewEscrowMetrics(meter)
	if err != nil {
		log.Warn("Escrow metrics disabled", zap.Error(err))
	}

	// Application services
	clock := shared.SystemClock{}
	agreementService := commissionapp.NewAgreementService(agreementRepo, clock)
	escrowService := escrowapp.NewEscrowService(accountRepo, agreementRepo, db, gateway, payoutService, idempotencyStore, clock)
	escrowService.SetMetrics(escrowMetrics)
	escrowService.SetRetryConfig(escrowapp.PayoutRetryConfig{
		MaxAttempts: cfg.Payout.RetryAttempts,
		BaseDelay:   cfg.Payout.RetryBaseDelay,
		MaxDelay:    cfg.Payout.RetryMaxDelay,
	})
	escrowService.SetWebhookDedupeTTL(cfg.Event.IdempotencyTTL)
	outboxService := eventapp.NewOutboxService(outboxRepo, clock)

	// Event bus and subscribers
	eventBus := event.NewInMemoryEventBus(log)
	activityHandler := event.NewIdempotentHandler(eventapp.NewLedgerActivityHandler(), idempotencyStore, log,
		event.WithIdempotencyConfig(shared.IdempotencyConfig{TTL: cfg.Event.IdempotencyTTL, Enabled: true}),
		event.WithHandlerName("ledger-activity"),
	)
	eventBus.Subscribe(activityHandler)
	if err := eventBus.Start(rootCtx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	defer func() {
		if err := eventBus.Stop(context.Background()); err != nil {
			log.Error("Error stopping event bus", zap.Error(err))
		}
	}()

	if cfg.Event.ProcessorEnabled {
		processorCfg := event.DefaultOutboxProcessorConfig()
		processorCfg.BatchSize = cfg.Event.BatchSize
		processorCfg.PollInterval = cfg.Event.PollInterval
		processorCfg.CleanupEnabled = cfg.Event.CleanupEnabled
		processorCfg.CleanupRetention = cfg.Event.CleanupRetention
		processorCfg.ClaimTimeout = cfg.Event.ClaimTimeout
		outboxProcessor := event.NewOutboxProcessor(outboxRepo, eventBus, eventSerializer, processorCfg, clock, log)
		if err := outboxProcessor.Start(rootCtx); err != nil {
			log.Fatal("Failed to start outbox processor", zap.Error(err))
		}
		defer func() {
			if err := outboxProcessor.Stop(context.Background()); err != nil {
				log.Error("Error stopping outbox processor", zap.Error(err))
			}
		}()
	}

	// Overdue milestone sweep, one replica per window
	sweeper, err := scheduler.NewOverdueSweeper(scheduler.OverdueSweepConfig{
		Enabled:   cfg.Scheduler.OverdueSweepEnabled,
		Interval:  cfg.Scheduler.OverdueSweepInterval,
		BatchSize: cfg.Scheduler.OverdueSweepBatchSize,
		Timeout:   cfg.Scheduler.OverdueSweepTimeout,
	}, agreementService, log, scheduler.WithLease(idempotencyStore))
	if err != nil {
		log.Fatal("Invalid overdue sweep configuration", zap.Error(err))
	}
	if err := sweeper.Start(rootCtx); err != nil {
		log.Fatal("Failed to start overdue sweep", zap.Error(err))
	}
	defer func() {
		if err := sweeper.Stop(context.Background()); err != nil {
			log.Error("Error stopping overdue sweep", zap.Error(err))
		}
	}()

	// HTTP
	if cfg.App.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	healthChecks := map[string]handler.Pinger{"database": db}
	if pinger, ok := idempotencyStore.(handler.Pinger); ok {
		healthChecks["redis"] = pinger
	}

	operators, err := cfg.HTTP.Operators()
	if err != nil {
		log.Fatal("Invalid operator list", zap.Error(err))
	}
	handlers := router.Handlers{
		Agreement: handler.NewAgreementHandler(agreementService),
		Escrow:    handler.NewEscrowHandler(escrowService),
		Webhook:   handler.NewStripeWebhookHandler(escrowService),
		System:    handler.NewSystemHandler(cfg.App.Name, version, healthChecks),
	}
	if len(operators) > 0 {
		handlers.Outbox = handler.NewOutboxHandler(outboxService)
		handlers.Operators = operators
	}

	principalCfg := middleware.PrincipalConfig{JWTEnabled: cfg.JWT.Enabled, Logger: log}
	if cfg.JWT.Enabled {
		principalCfg.Validator = auth.NewJWTService(cfg.JWT)
	} else {
		log.Warn("JWT disabled, trusting the X-User-ID header")
	}

	engine := router.NewEngine(router.EngineConfig{
		HTTP:   cfg.HTTP,
		Logger: log,
		Tracing: middleware.TracingConfig{
			ServiceName: pipeline.ServiceName(),
			Enabled:     pipeline.Enabled(),
		},
		Metrics: middleware.HTTPMetricsConfig{
			Meter:   pipeline.Meter("http.server"),
			Enabled: pipeline.Enabled(),
		},
		Security: middleware.DefaultSecurityConfig(),
	})
	for _, g := range router.Mount(engine, handlers, middleware.Principal(principalCfg)) {
		log.Debug("Routes mounted", zap.String("prefix", router.APIPrefix), zap.Strings("endpoints", g.Endpoints()))
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
		return
	}

	log.Info("Server exited gracefully")
}
