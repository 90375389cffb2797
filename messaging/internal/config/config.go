package config

import (
	"github.com/spf13/viper"

	common "github.com/kobliat/kobliat-stack/common/config"
	"github.com/kobliat/kobliat-stack/common/eventbus"
	"github.com/kobliat/kobliat-stack/messaging/internal/dispatch"
)

// Dispatch queue kinds.
const (
	QueueMemory    = "memory"
	QueueJetStream = "jetstream"
)

type Config struct {
	Server   common.ServerConfig   `mapstructure:"server"`
	Logging  common.LoggingConfig  `mapstructure:"logging"`
	Database common.DatabaseConfig `mapstructure:"database"`
	NATS     common.NATSConfig     `mapstructure:"nats"`
	EventBus eventbus.Config       `mapstructure:"eventbus"`
	Dispatch DispatchConfig        `mapstructure:"dispatch"`
}

// DispatchConfig controls outbound delivery. With the memory queue, retries
// live in the messaging process and die with it; jetstream hands jobs to
// cmd/dispatcher through the DISPATCH_JOBS stream.
type DispatchConfig struct {
	Queue        string                 `mapstructure:"queue"`
	Workers      int                    `mapstructure:"workers"`
	ConsumerName string                 `mapstructure:"consumer_name"`
	MaxBodySize  int64                  `mapstructure:"max_body_size"`
	Channels     dispatch.ChannelConfig `mapstructure:"channels"`
}

// Load reads the messaging service configuration. Environment overrides use MESSAGING_.
func Load(configPath string) (*Config, error) {
	return load(configPath, "MESSAGING", "/etc/kobliat/messaging")
}

// LoadDispatcher reads the configuration of the standalone dispatch worker.
// Environment overrides use DISPATCHER_.
func LoadDispatcher(configPath string) (*Config, error) {
	return load(configPath, "DISPATCHER", "/etc/kobliat/dispatcher")
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
	common.SetServerDefaults(v, 8083)
	common.SetLoggingDefaults(v)
	common.SetDatabaseDefaults(v, "messaging")
	common.SetNATSDefaults(v)
	common.SetEventBusDefaults(v, "messaging-service")

	v.SetDefault("dispatch.queue", QueueMemory)
	v.SetDefault("dispatch.workers", 4)
	v.SetDefault("dispatch.consumer_name", "outbound-dispatcher")
	v.SetDefault("dispatch.max_body_size", 1048576)
	v.SetDefault("dispatch.channels.whatsapp_url", "http://localhost:9000/whatsapp/send")
	v.SetDefault("dispatch.channels.sms_url", "http://localhost:9000/sms/send")
	v.SetDefault("dispatch.channels.timeout", "10s")
}
