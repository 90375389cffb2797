package cmd

import (
	"github.com/spf13/cobra"

	"github.com/kobliat/kobliat-stack/cli/pkg/output"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and switch connection profiles",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the resolved profile",
	Long:  "Show the active profile after defaults and RELAYCTL_* environment overrides are applied",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := activeProfile(cmd)
		if err != nil {
			return err
		}
		if handled, err := output.Structured(outputFormat(cmd), p); handled {
			return err
		}

		table := output.NewTable([]string{"SETTING", "VALUE"})
		table.AddRow([]string{"gateway_url", p.GatewayURL})
		table.AddRow([]string{"nats_url", p.NATSURL})
		table.AddRow([]string{"database_url", p.DatabaseURL})
		table.AddRow([]string{"migrations_dir", p.MigrationsDir})
		table.AddRow([]string{"transport", p.Transport})
		table.AddRow([]string{"restproxy_url", p.RESTProxyURL})
		table.AddRow([]string{"aws_region", p.AWSRegion})
		table.AddRow([]string{"aws_endpoint", p.AWSEndpoint})
		table.Render()
		return nil
	},
}

var configUseCmd = &cobra.Command{
	Use:   "use <profile>",
	Short: "Make a profile the current one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Use(args[0]); err != nil {
			return err
		}
		output.Success("Switched to profile '%s'", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configUseCmd)
}
