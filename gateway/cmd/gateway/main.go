package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kobliat/kobliat-stack/common/database"
	"github.com/kobliat/kobliat-stack/common/eventbus"
	"github.com/kobliat/kobliat-stack/common/logging"
	"github.com/kobliat/kobliat-stack/gateway/internal/clients"
	"github.com/kobliat/kobliat-stack/gateway/internal/config"
	"github.com/kobliat/kobliat-stack/gateway/internal/handlers"
	"github.com/kobliat/kobliat-stack/gateway/internal/ingest"
	"github.com/kobliat/kobliat-stack/gateway/internal/normalizer"
	"github.com/kobliat/kobliat-stack/gateway/internal/orchestrator"
	"github.com/kobliat/kobliat-stack/gateway/internal/ratelimit"
	"github.com/kobliat/kobliat-stack/gateway/internal/repository"
	"github.com/kobliat/kobliat-stack/gateway/internal/server"
	"github.com/kobliat/kobliat-stack/gateway/internal/signature"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With(logging.Service("gateway"))
	logging.SetDefault(logger)

	slog.Info("Starting Inbound Gateway",
		slog.Int("port", cfg.Server.Port),
		slog.String("log_level", cfg.Logging.Level),
		slog.String("orchestrator_mode", cfg.Orchestrator.Mode),
	)
	if *configPath != "" {
		slog.Info("Loaded configuration", slog.String("config_path", *configPath))
	}

	// Database
	dsn := cfg.Database.DSN()
	if err := database.Migrate(cfg.Database.MigrationsPath, dsn); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	db, err := database.OpenDB(ctx, dsn)
	cancel()
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	repo := repository.NewPostgresRepository(db)

	// Event bus
	bus, err := eventbus.New(context.Background(), cfg.EventBus, logger)
	if err != nil {
		log.Fatalf("Failed to initialize event bus: %v", err)
	}
	defer bus.Close()
	slog.Info("Event bus ready",
		logging.Transport(bus.TransportName()),
		slog.String("source_service", cfg.EventBus.SourceService),
	)

	// Rate limiter
	var rateLimiter ratelimit.RateLimiter
	if cfg.Redis.Enabled && cfg.Ingestion.RateLimitEnabled {
		limiter, err := ratelimit.NewRedisRateLimiter(
			cfg.Redis.URL,
			cfg.Ingestion.RateLimitRequests,
			cfg.Ingestion.RateLimitWindow,
		)
		if err != nil {
			slog.Warn("Failed to initialize Redis rate limiter, continuing without rate limiting", logging.Error(err))
			rateLimiter = &ratelimit.NoOpRateLimiter{}
		} else {
			rateLimiter = limiter
			slog.Info("Rate limiting enabled",
				slog.Int("requests", cfg.Ingestion.RateLimitRequests),
				slog.Duration("window", cfg.Ingestion.RateLimitWindow),
			)
		}
	} else {
		rateLimiter = &ratelimit.NoOpRateLimiter{}
	}
	defer rateLimiter.Close()

	// Orchestration
	opts := []ingest.Option{ingest.WithLogger(logger)}
	switch cfg.Orchestrator.Mode {
	case config.ModeInline, "":
		svcs := cfg.Orchestrator.Services
		orch := orchestrator.New(
			clients.NewCustomerClient(svcs.CustomersURL, svcs.Timeout),
			clients.NewConversationClient(svcs.ConversationsURL, svcs.Timeout),
			clients.NewMessageClient(svcs.MessagingURL, svcs.Timeout),
			logger,
		)
		opts = append(opts, ingest.WithListeners(orch))
	case config.ModeNATS:
		if cfg.EventBus.Transport != eventbus.TransportNATS {
			slog.Warn("Orchestrator mode is nats but the event bus does not publish to NATS",
				logging.Transport(string(cfg.EventBus.Transport)),
			)
		}
	case config.ModeDisabled:
		slog.Warn("Inbound orchestration disabled; webhooks are stored and published only")
	default:
		log.Fatalf("Unknown orchestrator mode: %s (supported: inline, nats, disabled)", cfg.Orchestrator.Mode)
	}

	ingestService := ingest.NewService(repo, bus, normalizer.NewDefaultRegistry(), opts...)
	verifier := signature.NewVerifier(cfg.Ingestion.SignatureSecrets)
	handler := handlers.NewWebhookHandler(ingestService, rateLimiter, cfg.Ingestion.MaxBodySize, logger).
		WithSignatureVerifier(verifier)
	router := server.NewRouter(handler)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		slog.Info("Gateway listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	slog.Info("Server stopped")
}
