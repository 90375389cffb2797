package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kobliat/kobliat-stack/cli/internal/payload"
	"github.com/kobliat/kobliat-stack/cli/pkg/output"
	"github.com/kobliat/kobliat-stack/common/eventbus"
	"github.com/kobliat/kobliat-stack/common/messaging"
)

type publishResult struct {
	EventID    string `json:"event_id"`
	TraceID    string `json:"trace_id"`
	Topic      string `json:"topic"`
	Transport  string `json:"transport"`
	OccurredAt string `json:"occurred_at"`
}

var publishCmd = &cobra.Command{
	Use:   "publish <topic>",
	Short: "Publish one event onto the bus",
	Long: `Wrap a payload in a standard envelope and publish it through the
profile's event bus transport. The payload file may be YAML or JSON; "-"
reads stdin.`,
	Example: `  relayctl publish customer.created --file customer.yaml
  echo '{"media_id":"med-1"}' | relayctl publish media.uploaded --file - --transport nats`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		topic := args[0]
		force, _ := cmd.Flags().GetBool("force")
		if !messaging.IsKnownTopic(topic) && !force {
			return fmt.Errorf("unknown topic %q (known: %s); use --force to publish anyway",
				topic, strings.Join(messaging.Topics(), ", "))
		}

		file, _ := cmd.Flags().GetString("file")
		body := map[string]any{}
		if file != "" {
			var err error
			if body, err = payload.Load(file); err != nil {
				return err
			}
		}

		p, err := activeProfile(cmd)
		if err != nil {
			return err
		}
		if transport, _ := cmd.Flags().GetString("transport"); transport != "" {
			p.Transport = transport
		}
		source, _ := cmd.Flags().GetString("source")

		bus, err := eventbus.New(cmd.Context(), p.EventBus(source), newLogger(cmd))
		if err != nil {
			return err
		}
		defer bus.Close()

		var opts []eventbus.PublishOption
		if traceID, _ := cmd.Flags().GetString("trace-id"); traceID != "" {
			opts = append(opts, eventbus.WithTraceID(traceID))
		}

		res := bus.Publish(cmd.Context(), topic, body, opts...)
		if res.Failed() {
			return fmt.Errorf("publish %s via %s: %s", topic, bus.TransportName(), res.Reason())
		}

		env := res.Envelope
		result := publishResult{
			EventID:    env.EventID(),
			TraceID:    env.TraceID(),
			Topic:      env.Topic(),
			Transport:  bus.TransportName(),
			OccurredAt: env.OccurredAt().Format("2006-01-02T15:04:05.000Z07:00"),
		}
		if handled, err := output.Structured(outputFormat(cmd), result); handled {
			return err
		}
		output.Success("Published %s via %s", result.Topic, result.Transport)
		output.Info("  event_id: %s", result.EventID)
		output.Info("  trace_id: %s", result.TraceID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(publishCmd)

	publishCmd.Flags().StringP("file", "f", "", "payload file (YAML or JSON, - for stdin)")
	publishCmd.Flags().String("transport", "", "override the profile transport: restproxy, eventbridge, nats, kafka, log")
	publishCmd.Flags().String("source", "relayctl", "source_service recorded on the envelope")
	publishCmd.Flags().String("trace-id", "", "trace id to carry (default: generated)")
	publishCmd.Flags().Bool("force", false, "publish topics outside the catalogue")
}
