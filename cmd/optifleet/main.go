package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	ofhttp "github.com/optifleet/optifleet/internal/adapter/http"
	ofnats "github.com/optifleet/optifleet/internal/adapter/nats"
	ofotel "github.com/optifleet/optifleet/internal/adapter/otel"
	"github.com/optifleet/optifleet/internal/adapter/postgres"
	"github.com/optifleet/optifleet/internal/adapter/ristretto"
	"github.com/optifleet/optifleet/internal/adapter/ws"
	"github.com/optifleet/optifleet/internal/config"
	"github.com/optifleet/optifleet/internal/domain/approval"
	"github.com/optifleet/optifleet/internal/domain/conflict"
	"github.com/optifleet/optifleet/internal/domain/plan"
	"github.com/optifleet/optifleet/internal/domain/recommendation"
	"github.com/optifleet/optifleet/internal/logger"
	"github.com/optifleet/optifleet/internal/middleware"
	"github.com/optifleet/optifleet/internal/resilience"
	"github.com/optifleet/optifleet/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	slog.SetDefault(logger.New(cfg.Logging))

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"pg_max_conns", cfg.Postgres.MaxConns,
		"step_timeout", cfg.Executor.StepTimeout,
	)

	ctx := context.Background()

	// --- Infrastructure ---

	// PostgreSQL
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	// NATS
	queue, err := ofnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Close() }()

	// Plan cache
	planCache, err := ristretto.New(int(cfg.Cache.MaxSizeMB))
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}

	// Telemetry
	shutdownOtel, err := ofotel.Setup(ctx, cfg.Telemetry, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownOtel(sctx)
	}()

	metrics, err := ofotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Services ---
	hub := ws.NewHub()
	store := postgres.NewStore(pool)
	invoker := ofnats.NewInvoker(queue)
	breakers := resilience.NewBreakerSet(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
	detector := conflict.NewDetector(conflict.DefaultOpposites())
	planner := plan.NewPlanner(plan.DefaultTemplates())
	policy := approval.NewPolicy(
		map[recommendation.Risk]time.Duration{
			recommendation.RiskMedium:   cfg.Approval.MediumWindow,
			recommendation.RiskHigh:     cfg.Approval.HighWindow,
			recommendation.RiskCritical: cfg.Approval.CriticalWindow,
		},
		map[recommendation.Risk]bool{
			recommendation.RiskLow: true,
		},
	)

	executorSvc := service.NewExecutorService(store, invoker, planner, breakers, planCache, queue, hub, metrics, cfg.Executor)
	approvalSvc := service.NewApprovalService(store, policy, executorSvc, queue, hub)
	coordinatorSvc := service.NewCoordinatorService(store, detector, approvalSvc, executorSvc, queue, metrics, cfg.Executor)

	// Queue ingestion (agents submitting batches over NATS)
	ingestSvc := service.NewIngestService(coordinatorSvc, queue)
	cancelIngest, err := ingestSvc.Start(ctx)
	if err != nil {
		return fmt.Errorf("ingest subscriber: %w", err)
	}
	defer cancelIngest()

	// --- HTTP ---
	handlers := &ofhttp.Handlers{
		Coordinator: coordinatorSvc,
		Approvals:   approvalSvc,
		Executor:    executorSvc,
		Hub:         hub,
	}

	r := chi.NewRouter()

	r.Use(ofhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(ofhttp.Logger)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(middleware.TenantID)
	r.Use(ofotel.HTTPMiddleware(cfg.Logging.Service))

	ofhttp.MountRoutes(r, handlers)

	addr := ":" + cfg.Server.Port

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
