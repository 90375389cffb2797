package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/kobliat/kobliat-stack/cli/internal/simulate"
	"github.com/kobliat/kobliat-stack/cli/pkg/output"
)

type simulatedWebhook struct {
	MessageID  string `json:"message_id"`
	From       string `json:"from"`
	Attempt    string `json:"attempt"`
	StatusCode int    `json:"status_code"`
	Status     string `json:"status"`
}

var webhookCmd = &cobra.Command{
	Use:   "webhook",
	Short: "Provider webhook tooling",
}

var webhookSimulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Post synthetic inbound messages to the gateway",
	Long: `Generate realistic WhatsApp-style inbound messages and POST them to
/webhooks/{provider} on the gateway. With --duplicate every payload is sent
twice, which should answer received and then ignored_duplicate.`,
	Example: `  relayctl webhook simulate --count 5
  relayctl webhook simulate --shape flat --seed 42 --duplicate`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := activeProfile(cmd)
		if err != nil {
			return err
		}
		gatewayURL, _ := cmd.Flags().GetString("gateway-url")
		if gatewayURL == "" {
			gatewayURL = p.GatewayURL
		}
		provider, _ := cmd.Flags().GetString("provider")
		count, _ := cmd.Flags().GetInt("count")
		shape, _ := cmd.Flags().GetString("shape")
		seed, _ := cmd.Flags().GetInt64("seed")
		duplicate, _ := cmd.Flags().GetBool("duplicate")
		traceID, _ := cmd.Flags().GetString("trace-id")
		timeout, _ := cmd.Flags().GetDuration("timeout")
		if count < 1 {
			return fmt.Errorf("--count must be at least 1")
		}

		sim := simulate.New(gatewayURL, seed, timeout)
		sends := 1
		if duplicate {
			sends = 2
		}

		var results []simulatedWebhook
		failed := 0
		for range count {
			hook, err := sim.Generate(simulate.Shape(shape))
			if err != nil {
				return err
			}
			for attempt := 1; attempt <= sends; attempt++ {
				resp, err := sim.Send(cmd.Context(), provider, hook.Payload, traceID)
				if err != nil {
					return err
				}
				if resp.StatusCode >= 300 {
					failed++
				}
				results = append(results, simulatedWebhook{
					MessageID:  hook.MessageID,
					From:       hook.From,
					Attempt:    strconv.Itoa(attempt),
					StatusCode: resp.StatusCode,
					Status:     resp.Status,
				})
			}
		}

		if handled, err := output.Structured(outputFormat(cmd), results); handled {
			return err
		}
		table := output.NewTable([]string{"MESSAGE ID", "FROM", "SEND", "HTTP", "STATUS"})
		for _, r := range results {
			table.AddRow([]string{r.MessageID, r.From, r.Attempt, strconv.Itoa(r.StatusCode), r.Status})
		}
		table.Render()

		if failed > 0 {
			output.Warn("%d of %d webhook(s) were rejected", failed, len(results))
			return nil
		}
		output.Success("Sent %d webhook(s) to %s", len(results), gatewayURL)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(webhookCmd)
	webhookCmd.AddCommand(webhookSimulateCmd)

	webhookSimulateCmd.Flags().String("gateway-url", "", "gateway base URL (default: profile gateway_url)")
	webhookSimulateCmd.Flags().String("provider", "whatsapp", "provider path segment")
	webhookSimulateCmd.Flags().IntP("count", "n", 1, "number of messages to generate")
	webhookSimulateCmd.Flags().String("shape", string(simulate.ShapeCloud), "payload layout: flat, messages, cloud")
	webhookSimulateCmd.Flags().Int64("seed", 0, "random seed for reproducible payloads (0 = random)")
	webhookSimulateCmd.Flags().Bool("duplicate", false, "send every payload twice")
	webhookSimulateCmd.Flags().String("trace-id", "", "X-Trace-ID to send")
	webhookSimulateCmd.Flags().Duration("timeout", 10*time.Second, "per-request timeout")
}
