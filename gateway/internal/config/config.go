package config

import (
	"time"

	"github.com/spf13/viper"

	common "github.com/kobliat/kobliat-stack/common/config"
	"github.com/kobliat/kobliat-stack/common/eventbus"
)

// Orchestrator modes.
const (
	ModeInline   = "inline"
	ModeNATS     = "nats"
	ModeDisabled = "disabled"
)

type Config struct {
	Server       common.ServerConfig   `mapstructure:"server"`
	Logging      common.LoggingConfig  `mapstructure:"logging"`
	Database     common.DatabaseConfig `mapstructure:"database"`
	Redis        common.RedisConfig    `mapstructure:"redis"`
	NATS         common.NATSConfig     `mapstructure:"nats"`
	EventBus     eventbus.Config       `mapstructure:"eventbus"`
	Ingestion    IngestionConfig       `mapstructure:"ingestion"`
	Orchestrator OrchestratorConfig    `mapstructure:"orchestrator"`
}

type IngestionConfig struct {
	MaxBodySize       int64         `mapstructure:"max_body_size"`
	RateLimitEnabled  bool          `mapstructure:"rate_limit_enabled"`
	RateLimitRequests int           `mapstructure:"rate_limit_requests"`
	RateLimitWindow   time.Duration `mapstructure:"rate_limit_window"`
	// SignatureSecrets maps provider to its HMAC-SHA256 webhook secret.
	SignatureSecrets map[string]string `mapstructure:"signature_secrets"`
}

// OrchestratorConfig controls how webhook.inbound.received is turned into
// customer, conversation and message records.
type OrchestratorConfig struct {
	// Mode is inline (in the ingesting request), nats (cmd/orchestrator) or disabled.
	Mode         string         `mapstructure:"mode"`
	ConsumerName string         `mapstructure:"consumer_name"`
	Services     ServicesConfig `mapstructure:"services"`
}

// ServicesConfig locates the collaborating services.
type ServicesConfig struct {
	CustomersURL     string        `mapstructure:"customers_url"`
	ConversationsURL string        `mapstructure:"conversations_url"`
	MessagingURL     string        `mapstructure:"messaging_url"`
	Timeout          time.Duration `mapstructure:"timeout"`
}

// Load reads the gateway configuration. Environment overrides use GATEWAY_.
func Load(configPath string) (*Config, error) {
	return load(configPath, "GATEWAY", "/etc/kobliat/gateway")
}

// LoadOrchestrator reads the configuration of the standalone orchestrator
// worker. It shares the gateway layout; environment overrides use ORCHESTRATOR_.
func LoadOrchestrator(configPath string) (*Config, error) {
	return load(configPath, "ORCHESTRATOR", "/etc/kobliat/orchestrator")
}

func load(configPath, envPrefix, etcDir string) (*Config, error) {
	var cfg Config
	err := common.Load(common.Options{
		Path:        configPath,
		SearchPaths: []string{".", etcDir},
		EnvPrefix:   envPrefix,
		Defaults:    setDefaults,
	}, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	common.SetServerDefaults(v, 8081)
	common.SetLoggingDefaults(v)
	common.SetDatabaseDefaults(v, "gateway")
	common.SetNATSDefaults(v)
	common.SetEventBusDefaults(v, "inbound-gateway")

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.enabled", false)

	v.SetDefault("ingestion.max_body_size", 1048576)
	v.SetDefault("ingestion.rate_limit_enabled", true)
	v.SetDefault("ingestion.rate_limit_requests", 600)
	v.SetDefault("ingestion.rate_limit_window", "1m")

	v.SetDefault("orchestrator.mode", ModeInline)
	v.SetDefault("orchestrator.consumer_name", "inbound-orchestrator")
	v.SetDefault("orchestrator.services.customers_url", "http://localhost:8001")
	v.SetDefault("orchestrator.services.conversations_url", "http://localhost:8002")
	v.SetDefault("orchestrator.services.messaging_url", "http://localhost:8083")
	v.SetDefault("orchestrator.services.timeout", "10s")
}
