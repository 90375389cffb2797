// Command orchestrator consumes webhook.inbound.received from JetStream and
// materializes customers, conversations and inbound messages. It is the
// out-of-process alternative to the gateway's inline orchestration.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kobliat/kobliat-stack/common/logging"
	natsclient "github.com/kobliat/kobliat-stack/common/messaging/nats"
	"github.com/kobliat/kobliat-stack/gateway/internal/clients"
	"github.com/kobliat/kobliat-stack/gateway/internal/config"
	"github.com/kobliat/kobliat-stack/gateway/internal/orchestrator"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.LoadOrchestrator(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With(logging.Service("orchestrator"))
	logging.SetDefault(logger)

	svcs := cfg.Orchestrator.Services
	slog.Info("Starting Inbound Orchestrator",
		slog.String("nats_url", cfg.NATS.URL),
		slog.String("consumer", cfg.Orchestrator.ConsumerName),
		slog.String("customers_url", svcs.CustomersURL),
		slog.String("conversations_url", svcs.ConversationsURL),
		slog.String("messaging_url", svcs.MessagingURL),
	)

	js, err := natsclient.NewJetStreamClient(natsclient.Config{
		URL:           cfg.NATS.URL,
		Name:          "kobliat-orchestrator",
		MaxReconnects: cfg.NATS.MaxReconnects,
		ReconnectWait: cfg.NATS.ReconnectWait,
		Timeout:       cfg.NATS.Timeout,
	})
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer js.Close()

	orch := orchestrator.New(
		clients.NewCustomerClient(svcs.CustomersURL, svcs.Timeout),
		clients.NewConversationClient(svcs.ConversationsURL, svcs.Timeout),
		clients.NewMessageClient(svcs.MessagingURL, svcs.Timeout),
		logger,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consumer := orchestrator.NewConsumer(js, orch, cfg.Orchestrator.ConsumerName, logger)
	if err := consumer.Start(ctx); err != nil {
		log.Fatalf("Failed to start consumer: %v", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down orchestrator...")
	consumer.Stop()
	slog.Info("Orchestrator stopped")
}
