package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/stuartshay/gridplan/internal/api"
	"github.com/stuartshay/gridplan/internal/config"
	grpcserver "github.com/stuartshay/gridplan/internal/grpc"
	"github.com/stuartshay/gridplan/internal/metrics"
	"github.com/stuartshay/gridplan/internal/planner"
	"github.com/stuartshay/gridplan/internal/plans"
	"github.com/stuartshay/gridplan/internal/queue"
	"github.com/stuartshay/gridplan/internal/store"
	"github.com/stuartshay/gridplan/internal/tracing"
)

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	setupLogging(cfg.LogFormat)
	setLogLevel(cfg.LogLevel)

	log.Info().Str("version", version).Msg("Starting gridplan service")

	log.Info().
		Str("service_name", cfg.ServiceName).
		Str("environment", cfg.Environment).
		Str("grpc_port", cfg.GRPCPort).
		Str("http_port", cfg.HTTPPort).
		Bool("store_enabled", cfg.StoreEnabled).
		Int("queue_workers", cfg.QueueWorkers).
		Dur("request_timeout", cfg.RequestTimeout).
		Msg("Configuration loaded")

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("Service failed")
	}

	log.Info().Msg("Service shutdown complete")
}

func run(cfg *config.Config) error {
	shutdownTracer, err := tracing.InitTracer(tracing.Config{
		ServiceName:      cfg.ServiceName,
		ServiceNamespace: "gridplan",
		ServiceVersion:   version,
		Environment:      cfg.Environment,
		Exporter:         cfg.OTELExporter,
		OTLPEndpoint:     cfg.OTELEndpoint,
		Enabled:          cfg.OTELEnabled,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to flush traces")
		}
	}()

	collector, err := metrics.NewCollector(nil)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	var planStore plans.Store
	if cfg.StoreEnabled {
		dbClient, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer dbClient.Close()
		planStore = dbClient
	}

	optimizer := planner.NewService(
		planner.WithDefaultPolicy(cfg.DefaultPolicy()),
		planner.WithCoincidentTolerance(cfg.CoincidentToleranceM),
		planner.WithRecorder(collector),
	)

	planService := plans.NewService(optimizer, plans.Config{
		Workers:  cfg.QueueWorkers,
		Capacity: cfg.QueueCapacity,
		Timeout:  cfg.RequestTimeout,
		Store:    planStore,
		Hooks:    []queue.Hook{collector.PlanJobHook()},
	})

	// Initialize gRPC server
	grpcServer := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(collector.UnaryServerInterceptor()),
	)
	grpcserver.RegisterPlannerServiceServer(grpcServer, grpcserver.NewServer(planService))

	// Register health check service
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(grpcserver.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	// Enable server reflection for debugging
	reflection.Register(grpcServer)

	listener, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCPort))
	if err != nil {
		return fmt.Errorf("failed to create TCP listener: %w", err)
	}

	httpServer := &http.Server{
		Addr: fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler: api.NewServer(api.Config{
			ServiceName: cfg.ServiceName,
			Environment: cfg.Environment,
			Timeout:     cfg.RequestTimeout,
		}, planService, collector).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("port", cfg.GRPCPort).Msg("gRPC server listening")
		if err := grpcServer.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("gRPC server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		log.Info().Str("port", cfg.HTTPPort).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutdown signal received, gracefully stopping...")
		healthServer.Shutdown()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Failed to shutdown HTTP server")
		}

		// Stop gRPC server
		stopped := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stopped)
		}()

		select {
		case <-shutdownCtx.Done():
			log.Warn().Msg("Shutdown timeout exceeded, forcing stop")
			grpcServer.Stop()
		case <-stopped:
			log.Info().Msg("gRPC server stopped")
		}

		// Drain plan job workers
		if err := planService.Shutdown(10 * time.Second); err != nil {
			log.Error().Err(err).Msg("Failed to shutdown plan workers")
		}
		return nil
	})

	return g.Wait()
}

// openStore connects to Postgres and applies pending migrations
func openStore(cfg *config.Config) (*store.Client, error) {
	dbClient, err := store.NewClient(cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database client: %w", err)
	}

	log.Info().
		Str("db_host", cfg.PostgresHost).
		Str("db_port", cfg.PostgresPort).
		Msg("Database connection established")

	if err := dbClient.Migrate(); err != nil {
		_ = dbClient.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Info().Msg("Database migrations applied")
	return dbClient, nil
}

// setupLogging selects JSON or human-readable console output
func setupLogging(format string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
		return
	}
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// setLogLevel configures the global log level
func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	log.Info().Str("level", level).Msg("Log level set")
}
