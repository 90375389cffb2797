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
	"github.com/kobliat/kobliat-stack/common/dlq"
	"github.com/kobliat/kobliat-stack/common/eventbus"
	"github.com/kobliat/kobliat-stack/common/logging"
	natsclient "github.com/kobliat/kobliat-stack/common/messaging/nats"
	"github.com/kobliat/kobliat-stack/messaging/internal/config"
	"github.com/kobliat/kobliat-stack/messaging/internal/dispatch"
	"github.com/kobliat/kobliat-stack/messaging/internal/handlers"
	"github.com/kobliat/kobliat-stack/messaging/internal/repository"
	"github.com/kobliat/kobliat-stack/messaging/internal/server"
	"github.com/kobliat/kobliat-stack/messaging/internal/service"
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
	).With(logging.Service("messaging"))
	logging.SetDefault(logger)

	slog.Info("Starting Messaging Service",
		slog.Int("port", cfg.Server.Port),
		slog.String("log_level", cfg.Logging.Level),
		slog.String("dispatch_queue", cfg.Dispatch.Queue),
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
	pool, err := database.OpenPool(ctx, dsn, database.PoolConfig{
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnIdleTime: cfg.Database.MaxConnIdle,
	})
	cancel()
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	repo := repository.NewPostgresRepository(pool)
	defer repo.Close()

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

	// Outbound dispatch
	var queue dispatch.Queue
	switch cfg.Dispatch.Queue {
	case config.QueueMemory, "":
		dispatcher := dispatch.NewDispatcher(
			dispatch.NewDefaultRegistry(cfg.Dispatch.Channels, logger),
			repo,
			dispatch.WithLogger(logger),
			dispatch.WithDeadLetter(dlq.NewMemoryQueue(dlq.WithLogger(logger))),
		)
		queue = dispatch.NewMemoryQueue(dispatcher, cfg.Dispatch.Workers, dispatch.WithQueueLogger(logger))
		slog.Info("Outbound dispatch running in process", slog.Int("workers", cfg.Dispatch.Workers))
	case config.QueueJetStream:
		js, err := natsclient.NewJetStreamClient(natsclient.Config{
			URL:           cfg.NATS.URL,
			Name:          "kobliat-messaging",
			MaxReconnects: cfg.NATS.MaxReconnects,
			ReconnectWait: cfg.NATS.ReconnectWait,
			Timeout:       cfg.NATS.Timeout,
		})
		if err != nil {
			log.Fatalf("Failed to connect to NATS: %v", err)
		}
		defer js.Close()
		jsQueue, err := dispatch.NewJetStreamQueue(context.Background(), js)
		if err != nil {
			log.Fatalf("Failed to initialize dispatch queue: %v", err)
		}
		queue = jsQueue
		slog.Info("Outbound jobs published to JetStream", slog.String("stream", natsclient.DispatchJobsStream.Name))
	default:
		log.Fatalf("Unknown dispatch queue: %s (supported: memory, jetstream)", cfg.Dispatch.Queue)
	}

	svc := service.NewService(repo, bus, queue, service.WithLogger(logger))
	handler := handlers.NewMessageHandler(svc, cfg.Dispatch.MaxBodySize, logger)
	router := server.NewRouter(handler)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		slog.Info("Messaging service listening", slog.String("addr", srv.Addr))
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
	if err := queue.Close(); err != nil {
		slog.Warn("Dispatch queue did not close cleanly", logging.Error(err))
	}

	slog.Info("Server stopped")
}
