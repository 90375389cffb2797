package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kobliat/kobliat-stack/cli/internal/tail"
	"github.com/kobliat/kobliat-stack/cli/pkg/output"
	"github.com/kobliat/kobliat-stack/common/messaging"
	natsclient "github.com/kobliat/kobliat-stack/common/messaging/nats"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Observe domain events on the bus",
}

var eventsTailCmd = &cobra.Command{
	Use:   "tail [subject...]",
	Short: "Stream live events published through the nats transport",
	Long: `Subscribe to domain event subjects on the profile's NATS server and print
each envelope as it is published. Subjects may use NATS wildcards; with none,
every topic in the catalogue is followed. Nothing is acknowledged or consumed.`,
	Example: `  relayctl events tail
  relayctl events tail 'message.>' --count 10 --output json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		count, _ := cmd.Flags().GetInt("count")
		timeout, _ := cmd.Flags().GetDuration("timeout")
		if count < 0 {
			return fmt.Errorf("--count must not be negative")
		}
		emit, err := eventPrinter(cmd.OutOrStdout(), outputFormat(cmd))
		if err != nil {
			return err
		}
		subjects := args
		if len(subjects) == 0 {
			subjects = messaging.Topics()
		}

		p, err := activeProfile(cmd)
		if err != nil {
			return err
		}
		natsCfg := natsclient.DefaultConfig()
		natsCfg.URL = p.NATSURL
		natsCfg.Name = "relayctl-tail"
		client, err := natsclient.NewClient(natsCfg)
		if err != nil {
			return fmt.Errorf("connect to NATS at %s: %w", p.NATSURL, err)
		}
		defer client.Close()

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		return tail.Run(ctx, client, subjects, count, emit)
	},
}

// eventPrinter writes one event per line for table output, JSON Lines for
// json and a YAML document stream for yaml.
func eventPrinter(w io.Writer, format string) (func(tail.Event) error, error) {
	switch format {
	case output.FormatJSON:
		enc := json.NewEncoder(w)
		return func(ev tail.Event) error { return enc.Encode(ev) }, nil
	case output.FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		return func(ev tail.Event) error { return enc.Encode(ev) }, nil
	case output.FormatTable, "":
		return func(ev tail.Event) error {
			body := ev.Raw
			if ev.Payload != nil {
				data, err := json.Marshal(ev.Payload)
				if err != nil {
					return err
				}
				body = string(data)
			}
			at := "-"
			if ev.OccurredAt != nil {
				at = ev.OccurredAt.UTC().Format(time.RFC3339)
			}
			traceID := ev.TraceID
			if traceID == "" {
				traceID = "-"
			}
			_, err := fmt.Fprintf(w, "%s  %-32s  %s  %s\n", at, ev.Subject, traceID, truncate(body, 120))
			return err
		}, nil
	default:
		return nil, fmt.Errorf("unknown output format %q (supported: table, json, yaml)", format)
	}
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsTailCmd)

	eventsTailCmd.Flags().Int("count", 0, "stop after this many events (0: until interrupted)")
	eventsTailCmd.Flags().Duration("timeout", 0, "stop after this long (0: until interrupted)")
}
