// Command dispatcher consumes outbound jobs from the DISPATCH_JOBS stream,
// sends them through the channel providers and records the outcome on the
// message. Jobs that exhaust their attempts land in DISPATCH_DLQ.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kobliat/kobliat-stack/common/database"
	"github.com/kobliat/kobliat-stack/common/dlq"
	"github.com/kobliat/kobliat-stack/common/logging"
	natsclient "github.com/kobliat/kobliat-stack/common/messaging/nats"
	"github.com/kobliat/kobliat-stack/messaging/internal/config"
	"github.com/kobliat/kobliat-stack/messaging/internal/dispatch"
	"github.com/kobliat/kobliat-stack/messaging/internal/repository"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.LoadDispatcher(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With(logging.Service("dispatcher"))
	logging.SetDefault(logger)

	slog.Info("Starting Outbound Dispatcher",
		slog.String("nats_url", cfg.NATS.URL),
		slog.String("consumer", cfg.Dispatch.ConsumerName),
		slog.String("whatsapp_url", cfg.Dispatch.Channels.WhatsAppURL),
		slog.String("sms_url", cfg.Dispatch.Channels.SMSURL),
	)

	// The dispatcher writes delivery outcomes to the messaging database but
	// never migrates it.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := database.OpenPool(ctx, cfg.Database.DSN(), database.PoolConfig{
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

	js, err := natsclient.NewJetStreamClient(natsclient.Config{
		URL:           cfg.NATS.URL,
		Name:          "kobliat-dispatcher",
		MaxReconnects: cfg.NATS.MaxReconnects,
		ReconnectWait: cfg.NATS.ReconnectWait,
		Timeout:       cfg.NATS.Timeout,
	})
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer js.Close()

	ctx, cancel = context.WithCancel(context.Background())
	defer cancel()

	deadLetters, err := dlq.NewJetStreamQueue(ctx, js, logger)
	if err != nil {
		log.Fatalf("Failed to initialize dead letter queue: %v", err)
	}

	dispatcher := dispatch.NewDispatcher(
		dispatch.NewDefaultRegistry(cfg.Dispatch.Channels, logger),
		repo,
		dispatch.WithLogger(logger),
		dispatch.WithDeadLetter(deadLetters),
	)

	worker := dispatch.NewJetStreamWorker(js, dispatcher, cfg.Dispatch.ConsumerName, logger)
	if err := worker.Start(ctx); err != nil {
		log.Fatalf("Failed to start dispatch worker: %v", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down dispatcher...")
	worker.Stop()
	slog.Info("Dispatcher stopped")
}
