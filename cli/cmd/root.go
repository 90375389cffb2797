package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kobliat/kobliat-stack/cli/internal/config"
	"github.com/kobliat/kobliat-stack/common/logging"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "relayctl",
	Short: "Kobliat Stack operator CLI",
	Long: `relayctl is the operator interface for the Kobliat messaging backbone.

Run database migrations, publish and tail events on the bus, simulate provider
webhooks against the gateway, and inspect or export the outbound dispatch
dead-letter queue.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return err
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.relayctl/config.yaml)")
	rootCmd.PersistentFlags().String("profile", "", "profile to use (default: current profile)")
	rootCmd.PersistentFlags().String("output", "table", "output format: table, json, yaml")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level for client libraries")
}

func initConfig() {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not load config: %v\n", err)
		cfg = config.Default()
	}
}

// activeProfile resolves --profile against the loaded config.
func activeProfile(cmd *cobra.Command) (*config.Profile, error) {
	name, _ := cmd.Flags().GetString("profile")
	if cfg == nil {
		cfg = config.Default()
	}
	return cfg.Resolve(name)
}

func outputFormat(cmd *cobra.Command) string {
	format, _ := cmd.Flags().GetString("output")
	return format
}

func newLogger(cmd *cobra.Command) *logging.Logger {
	level, _ := cmd.Flags().GetString("log-level")
	return logging.NewWithWriter(cmd.ErrOrStderr(), logging.ParseLevel(level), "text").
		With(logging.Service("relayctl"))
}
