package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	approvalapp "github.com/erp/docflow/internal/application/approval"
	numberingapp "github.com/erp/docflow/internal/application/numbering"
	workflowapp "github.com/erp/docflow/internal/application/workflow"
	"github.com/erp/docflow/internal/domain/approval"
	"github.com/erp/docflow/internal/domain/workflow"
	"github.com/erp/docflow/internal/infrastructure/auth"
	"github.com/erp/docflow/internal/infrastructure/cache"
	"github.com/erp/docflow/internal/infrastructure/config"
	"github.com/erp/docflow/internal/infrastructure/event"
	"github.com/erp/docflow/internal/infrastructure/lock"
	"github.com/erp/docflow/internal/infrastructure/logger"
	"github.com/erp/docflow/internal/infrastructure/persistence"
	"github.com/erp/docflow/internal/infrastructure/telemetry"
	"github.com/erp/docflow/internal/interfaces/http/handler"
	"github.com/erp/docflow/internal/interfaces/http/middleware"
	"github.com/erp/docflow/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	version            = "1.0.0"
	slowQueryThreshold = 200 * time.Millisecond
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	logCfg := &logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	}
	log, err := logger.New(logCfg)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	ctx := context.Background()
	telemetryCfg := telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
		MetricsInterval:   cfg.Telemetry.MetricsInterval,
		LogsEnabled:       cfg.Telemetry.LogsEnabled,
	}

	logsProvider, err := telemetry.NewLoggerProvider(ctx, telemetryCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize logger provider", zap.Error(err))
	}
	if logsProvider.IsEnabled() {
		log, err = logger.New(logCfg, logsProvider.Core(logger.ParseLevel(cfg.Log.Level)))
		if err != nil {
			panic("Failed to initialize logger: " + err.Error())
		}
	}
	defer func() {
		shutdown(log, "logger provider", logsProvider.Shutdown)
	}()
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting document workflow service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.Bool("log_export", logsProvider.IsEnabled()),
	)

	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetryCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	defer shutdown(log, "tracer provider", tracerProvider.Shutdown)

	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetryCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	defer shutdown(log, "meter provider", meterProvider.Shutdown)
	meter := meterProvider.Meter(cfg.Telemetry.ServiceName)

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:         cfg.Telemetry.ProfilingEnabled,
		ServerAddress:   cfg.Telemetry.ProfilerAddress,
		ApplicationName: cfg.Telemetry.ServiceName,
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	defer func() {
		if err := profiler.Stop(); err != nil {
			log.Error("Error stopping profiler", zap.Error(err))
		}
	}()
	if profiler.IsEnabled() {
		tracerProvider.EnableSpanProfiles()
	}

	workflowMetrics, err := telemetry.NewWorkflowMetrics(meter)
	if err != nil {
		log.Fatal("Failed to create workflow metrics", zap.Error(err))
	}

	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level), logger.WithSlowThreshold(slowQueryThreshold))
	db, err := persistence.NewDatabase(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully", zap.String("driver", cfg.Database.Driver))

	if err := telemetry.RegisterDBTracing(db.DB, telemetry.DBTracingConfig{
		Enabled:          cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		DBSystem:         cfg.Database.Driver,
		SlowQueryThresh:  slowQueryThreshold,
		IncludeVariables: cfg.App.IsDevelopment(),
	}, log); err != nil {
		log.Fatal("Failed to register database tracing", zap.Error(err))
	}

	if cfg.Database.AutoMigrate {
		if err := db.AutoMigrate(); err != nil {
			log.Fatal("Failed to migrate database", zap.Error(err))
		}
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedisClient(cfg.Redis)
		if err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				log.Error("Error closing Redis client", zap.Error(err))
			}
		}()
		log.Info("Redis connected", zap.String("addr", cfg.Redis.Addr()))
	}

	registry, err := buildRegistry(cfg.Workflow.Domains)
	if err != nil {
		log.Fatal("Invalid workflow domain configuration", zap.Error(err))
	}

	broadcaster := event.NewBroadcaster(log,
		event.WithBuffer(cfg.Event.SubscriberBuffer),
		event.WithMetrics(workflowMetrics),
	)
	defer broadcaster.Close()

	var stateStore workflow.StateStore = persistence.NewGormStateStore(db.DB)
	var stateCache *cache.CachedStateStore
	if cfg.Workflow.StateCache > 0 {
		stateCache, err = cache.NewCachedStateStore(stateStore, cfg.Workflow.StateCache)
		if err != nil {
			log.Fatal("Failed to create state cache", zap.Error(err))
		}
		stateStore = stateCache
	}

	backgroundCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	var publisher workflow.Publisher = broadcaster
	var relay *event.RedisRelay
	if cfg.Event.RedisRelayEnabled {
		relay = event.NewRedisRelay(redisClient, broadcaster,
			event.WithRelayChannel(cfg.Event.RedisChannel),
			event.WithRelayQueue(cfg.Event.RelayQueue),
			event.WithRelayLogger(log),
		)
		if stateCache != nil {
			relay.Observe(stateCache.Observe)
		}
		publisher = relay
		go func() {
			if err := relay.Run(backgroundCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("Event relay exited", zap.Error(err))
			}
		}()
	}

	var rules approval.RuleRepository = persistence.NewGormRuleRepository(db.DB)
	if cfg.Workflow.RuleCacheTTL > 0 {
		var ruleOpts []cache.RuleCacheOption
		var invalidation *cache.RuleInvalidation
		if redisClient != nil {
			invalidation = cache.NewRuleInvalidation(redisClient, cache.DefaultRuleChannel, log)
			ruleOpts = append(ruleOpts, cache.WithChangeHook(invalidation.Notify))
		}
		ruleCache := cache.NewCachedRuleRepository(rules, cfg.Workflow.RuleCacheTTL, ruleOpts...)
		if invalidation != nil {
			go func() {
				if err := invalidation.Run(backgroundCtx, ruleCache.Flush); err != nil && !errors.Is(err, context.Canceled) {
					log.Error("Rule invalidation listener exited", zap.Error(err))
				}
			}()
		}
		rules = ruleCache
	}
	approvalEngine := approvalapp.NewEngine(rules, persistence.NewGormRequestRepository(db.DB), log, workflowMetrics)

	locker := lock.NewKeyedLocker(cfg.Workflow.LockRetries, cfg.Workflow.LockMaxDelay)
	stateMachine := workflowapp.NewStateMachine(
		registry,
		stateStore,
		persistence.NewGormAuditLog(db.DB),
		persistence.NewGormDocumentRepository(db.DB),
		publisher,
		workflowapp.WithLocker(locker),
		workflowapp.WithApprovalGate(approvalEngine),
		workflowapp.WithMetrics(workflowMetrics),
		workflowapp.WithLogger(log),
	)
	approvalService := approvalapp.NewService(approvalEngine, stateMachine, rules, locker, log)

	counterStore, err := cache.NewCounterStore(cfg.Numbering, db.DB, redisClient, log)
	if err != nil {
		log.Fatal("Failed to create number series store", zap.Error(err))
	}
	generator := numberingapp.NewGenerator(counterStore, numberingapp.ConfigFrom(cfg.Numbering), workflowMetrics, log)

	systemOpts := []handler.SystemOption{
		handler.WithHealthCheck("database", db),
		handler.WithConnectionCounter(broadcaster),
		handler.WithDomains(stateMachine.Domains),
	}
	if redisClient != nil {
		systemOpts = append(systemOpts, handler.WithHealthCheck("redis", handler.PingerFunc(func() error {
			return redisClient.Ping(context.Background()).Err()
		})))
	}

	handlers := router.Handlers{
		Workflow:  handler.NewWorkflowHandler(stateMachine),
		Approval:  handler.NewApprovalHandler(approvalService, defaultApprovalDomain(cfg.Workflow.Domains)),
		Numbering: handler.NewNumberingHandler(generator),
		Events: handler.NewEventStreamHandler(stateMachine, broadcaster,
			handler.WithStreamLogger(log),
			handler.WithStreamHeartbeat(cfg.Event.HeartbeatInterval),
		),
		System: handler.NewSystemHandler(cfg.App.Name, version, systemOpts...),
	}

	if !cfg.App.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Enabled:     tracerProvider.IsEnabled(),
	}))
	engine.Use(middleware.SpanErrorMarker())
	engine.Use(middleware.HTTPMetrics(meter, log))
	engine.Use(middleware.Secure())

	corsConfig := middleware.DefaultCORSConfig()
	if len(cfg.HTTP.CORSAllowOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	}
	if len(cfg.HTTP.CORSAllowMethods) > 0 {
		corsConfig.AllowMethods = cfg.HTTP.CORSAllowMethods
	}
	if len(cfg.HTTP.CORSAllowHeaders) > 0 {
		corsConfig.AllowHeaders = cfg.HTTP.CORSAllowHeaders
	}
	engine.Use(middleware.CORSWithConfig(corsConfig))
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	var jwtService *auth.JWTService
	if cfg.JWT.Enabled {
		jwtService = auth.NewJWTService(cfg.JWT)
	} else {
		log.Warn("JWT authentication disabled, actors are read from X-Actor-* headers")
	}
	actorConfig := middleware.DefaultActorConfig(jwtService)
	actorConfig.Logger = log

	profilingConfig := middleware.DefaultProfilingConfig()
	profilingConfig.Enabled = profiler.IsEnabled()

	router.Mount(engine, handlers,
		middleware.ActorMiddleware(actorConfig),
		middleware.TracingAttributeInjector(),
		middleware.ProfilingWithConfig(profilingConfig),
	)

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr), zap.Strings("domains", registry.Names()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Closing the broadcaster ends open event streams so Shutdown does not wait on them.
	broadcaster.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if relay != nil {
		if err := relay.Stop(shutdownCtx); err != nil {
			log.Error("Error stopping event relay", zap.Error(err))
		}
	}

	log.Info("Server exited gracefully")
}

// buildRegistry turns the configured domains into definitions
func buildRegistry(domains map[string]config.WorkflowDomainConfig) (*workflow.Registry, error) {
	defs := make([]*workflow.Definition, 0, len(domains))
	for name, d := range domains {
		def, err := workflow.NewDefinition(name, d.RequiresApproval, d.Guards...)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return workflow.NewRegistry(defs...)
}

// defaultApprovalDomain is the approval domain used when a request body names
// none. It is only set when exactly one domain requires approval, or when an
// "invoice" domain exists.
func defaultApprovalDomain(domains map[string]config.WorkflowDomainConfig) string {
	var names []string
	for name, d := range domains {
		if d.RequiresApproval {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if len(names) == 1 {
		return names[0]
	}
	for _, n := range names {
		if n == "invoice" {
			return n
		}
	}
	return ""
}

func shutdown(log *zap.Logger, name string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := fn(ctx); err != nil {
		log.Error("Error shutting down "+name, zap.Error(err))
	}
}
