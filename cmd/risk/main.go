package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/richxcame/risk-engine/internal/fraud"
	"github.com/richxcame/risk-engine/internal/risk"
	"github.com/richxcame/risk-engine/pkg/cache"
	"github.com/richxcame/risk-engine/pkg/common"
	"github.com/richxcame/risk-engine/pkg/config"
	"github.com/richxcame/risk-engine/pkg/database"
	"github.com/richxcame/risk-engine/pkg/errors"
	"github.com/richxcame/risk-engine/pkg/eventbus"
	"github.com/richxcame/risk-engine/pkg/health"
	"github.com/richxcame/risk-engine/pkg/logger"
	"github.com/richxcame/risk-engine/pkg/middleware"
	redisclient "github.com/richxcame/risk-engine/pkg/redis"
	"github.com/richxcame/risk-engine/pkg/resilience"
	"github.com/richxcame/risk-engine/pkg/tracing"
	"go.uber.org/zap"
)

const (
	serviceName = "risk-engine"
	version     = "1.0.0"
)

func main() {
	cfg, err := config.Load(serviceName)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	if err := logger.Init(cfg.Server.Environment, serviceName); err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("Starting risk engine",
		zap.String("service", serviceName),
		zap.String("version", version),
		zap.String("environment", cfg.Server.Environment),
	)

	// Initialize Sentry for error tracking
	sentryConfig := errors.DefaultSentryConfig()
	sentryConfig.ServerName = serviceName
	sentryConfig.Release = version
	if err := errors.InitSentry(sentryConfig); err != nil {
		logger.Warn("Failed to initialize Sentry, continuing without error tracking", zap.Error(err))
	} else if sentryConfig.Enabled() {
		defer errors.Flush(2 * time.Second)
		logger.Info("Sentry error tracking initialized successfully")
	}

	// Initialize OpenTelemetry tracer
	tracerCfg := tracing.ConfigFromEnv(serviceName, version, cfg.Server.Environment)
	tp, err := tracing.InitTracer(tracerCfg, logger.Get())
	if err != nil {
		logger.Warn("Failed to initialize tracer, continuing without tracing", zap.Error(err))
	} else if tp != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Failed to shutdown tracer", zap.Error(err))
			}
		}()
		logger.Info("OpenTelemetry tracing initialized successfully")
	}

	db, err := database.NewPostgresPool(&cfg.Database, serviceName)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close(db)
	logger.Info("Connected to database")

	if err := database.RunMigrations(cfg.Database.MigrationsPath, cfg.Database.URL()); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	redisClient, err := redisclient.NewRedisClient(&cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to redis", zap.Error(err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("Failed to close redis client", zap.Error(err))
		}
	}()
	logger.Info("Connected to redis", zap.String("addr", cfg.Redis.RedisAddr()))

	// A nil *Bus must not leak into the Publisher interface
	var publisher eventbus.Publisher
	var bus *eventbus.Bus
	if cfg.NATS.Enabled && cfg.NATS.URL != "" {
		bus, err = eventbus.New(eventbus.Config{
			URL:        cfg.NATS.URL,
			Name:       serviceName,
			StreamName: cfg.NATS.StreamName,
			MaxAge:     cfg.NATS.MaxAge(),
			MaxDeliver: cfg.NATS.MaxDeliver,
		})
		if err != nil {
			logger.Warn("Failed to connect to NATS - risk events disabled", zap.Error(err))
			bus = nil
		} else {
			publisher = bus
			defer bus.Close()
		}
	}

	breakers := make(map[string]*resilience.CircuitBreaker)
	if cfg.Resilience.CircuitBreaker.Enabled {
		for _, source := range []string{risk.SourceTelco, risk.SourceDevice, risk.SourcePrior, risk.SourceFraudHistory} {
			settings := cfg.Resilience.CircuitBreaker.SettingsFor(source)
			breakers[source] = resilience.NewCircuitBreaker(resilience.SettingsFromConfig(source, settings), risk.SourceFallback(source))
			logger.Info("Circuit breaker configured for signal source",
				zap.String("source", source),
				zap.Int("failure_threshold", settings.FailureThreshold),
				zap.Int("timeout_seconds", settings.TimeoutSeconds),
			)
		}
	}

	// Fraud alerts
	fraudRepo := fraud.NewRepository(db)
	fraudService := fraud.NewService(fraudRepo, publisher)
	fraudHandler := fraud.NewHandler(fraudService)
	if bus != nil {
		if err := fraud.NewEventHandler(fraudService).RegisterSubscriptions(rootCtx, bus); err != nil {
			logger.Warn("Failed to subscribe fraud alerts to risk events", zap.Error(err))
		}
	}

	// Risk engine
	riskRepo := risk.NewRepository(db, cache.NewManager(redisClient))
	telcoStore := risk.NewRedisTelcoStore(redisClient, cfg.Risk.TelcoSignalTTL())
	gateway := risk.NewGateway(risk.GatewayConfig{
		Telco:              telcoStore,
		Devices:            riskRepo,
		Prior:              riskRepo,
		FraudHistory:       fraudRepo,
		FetchTimeout:       cfg.Risk.FetchTimeout(),
		FraudHistoryWindow: cfg.Risk.FraudHistoryWindow(),
		Breakers:           breakers,
	})
	recorder := risk.NewAsyncRecorder(riskRepo, publisher, cfg.Risk.RecordTimeout())
	engine := risk.NewEngine(risk.NewPolicyConfig(cfg.Risk), gateway, recorder)
	riskHandler := risk.NewHandler(engine, riskRepo, telcoStore)

	logger.Info("Risk engine configured",
		zap.Duration("fetch_timeout", cfg.Risk.FetchTimeout()),
		zap.Float64("geovelocity_max_kmh", cfg.Risk.GeovelocityMaxKmh),
		zap.Duration("sim_change_window", cfg.Risk.SimChangeWindow()),
		zap.Bool("events_enabled", publisher != nil),
	)

	deepChecker := health.NewDeepChecker(health.DeepCheckerConfig{
		Version:  version,
		Timeout:  2 * time.Second,
		CacheTTL: 10 * time.Second,
	})
	deepChecker.AddDependency("postgres", func(ctx context.Context) error {
		return db.Ping(ctx)
	}, true)
	deepChecker.AddDependency("redis", func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	}, true)
	if bus != nil {
		deepChecker.AddDependency("nats", func(ctx context.Context) error {
			if !bus.Connected() {
				return fmt.Errorf("nats disconnected")
			}
			return nil
		}, false)
	}
	for name, breaker := range breakers {
		deepChecker.AddCircuitBreaker(name, breaker)
	}

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.SentryMiddleware())
	router.Use(middleware.RequestLogger(serviceName))
	router.Use(middleware.TracingMiddleware(serviceName))
	router.Use(middleware.Metrics(serviceName))
	router.Use(middleware.ErrorHandler())

	router.GET("/healthz", common.HealthCheck(serviceName, version))
	router.GET("/health/deep", deepChecker.GinHandler())
	router.GET("/readyz", func(c *gin.Context) {
		if !deepChecker.IsReady(c.Request.Context()) {
			c.Status(http.StatusServiceUnavailable)
			return
		}
		c.Status(http.StatusOK)
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	api.Use(middleware.InternalAPIKey(cfg.Server.InternalAPIKey))
	api.Use(middleware.RequestTimeout(cfg.Server.RequestTimeout()))
	riskHandler.RegisterRoutes(api)
	fraudHandler.RegisterRoutes(api)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("Server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	cancelRoot()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	drainCtx, cancelDrain := context.WithTimeout(context.Background(), cfg.Risk.RecordTimeout())
	defer cancelDrain()
	if err := recorder.Drain(drainCtx); err != nil {
		logger.Warn("Assessment records still pending at shutdown", zap.Error(err))
	}

	logger.Info("Server stopped")
}
