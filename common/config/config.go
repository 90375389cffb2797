// Package config provides the configuration sections and viper loading shared by
// every Kobliat service. Each service owns its own Config struct built from these
// sections and loads it once at startup.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	Database       string        `mapstructure:"database"`
	User           string        `mapstructure:"user"`
	Password       string        `mapstructure:"password"`
	SSLMode        string        `mapstructure:"sslmode"`
	MigrationsPath string        `mapstructure:"migrations_path"`
	MaxConns       int32         `mapstructure:"max_conns"`
	MinConns       int32         `mapstructure:"min_conns"`
	MaxConnIdle    time.Duration `mapstructure:"max_conn_idle"`
}

// DSN builds a postgres:// connection string.
func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     "/" + d.Database,
		RawQuery: "sslmode=" + d.SSLMode,
	}
	return u.String()
}

// NATSConfig holds NATS broker configuration.
type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	URL     string `mapstructure:"url"`
	Enabled bool   `mapstructure:"enabled"`
}

// Options controls how Load finds and overlays configuration.
type Options struct {
	// Path is an explicit config file; when empty SearchPaths are tried for config.yaml.
	Path        string
	SearchPaths []string
	// EnvPrefix namespaces environment overrides, e.g. GATEWAY_SERVER_PORT.
	EnvPrefix string
	// Defaults registers service defaults before the file is read.
	Defaults func(v *viper.Viper)
}

// Load reads defaults, an optional YAML file and environment overrides into out.
// A missing config file is not an error.
func Load(opts Options, out any) error {
	v := viper.New()

	if opts.Defaults != nil {
		opts.Defaults(v)
	}

	if opts.Path != "" {
		v.SetConfigFile(opts.Path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		for _, p := range opts.SearchPaths {
			v.AddConfigPath(p)
		}
	}

	if opts.EnvPrefix != "" {
		v.SetEnvPrefix(opts.EnvPrefix)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := v.Unmarshal(out); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return nil
}

// SetServerDefaults registers defaults for a ServerConfig under "server".
func SetServerDefaults(v *viper.Viper, port int) {
	v.SetDefault("server.port", port)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
}

// SetLoggingDefaults registers defaults for a LoggingConfig under "logging".
func SetLoggingDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// SetDatabaseDefaults registers defaults for a DatabaseConfig under "database".
func SetDatabaseDefaults(v *viper.Viper, name string) {
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", name)
	v.SetDefault("database.user", "kobliat")
	v.SetDefault("database.password", "kobliat")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.migrations_path", "migrations")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_idle", "1m")
}

// SetNATSDefaults registers defaults for a NATSConfig under "nats".
func SetNATSDefaults(v *viper.Viper) {
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.max_reconnects", -1)
	v.SetDefault("nats.reconnect_wait", "2s")
	v.SetDefault("nats.timeout", "5s")
}

// SetEventBusDefaults registers defaults for eventbus.Config under "eventbus".
func SetEventBusDefaults(v *viper.Viper, sourceService string) {
	v.SetDefault("eventbus.transport", "restproxy")
	v.SetDefault("eventbus.source_service", sourceService)
	v.SetDefault("eventbus.restproxy.url", "http://localhost:8082")
	v.SetDefault("eventbus.restproxy.timeout", "5s")
	v.SetDefault("eventbus.eventbridge.region", "us-east-1")
	v.SetDefault("eventbus.eventbridge.event_bus_name", "kobliat-events")
	v.SetDefault("eventbus.nats.url", "nats://localhost:4222")
	v.SetDefault("eventbus.kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("eventbus.kafka.timeout", "10s")
}
