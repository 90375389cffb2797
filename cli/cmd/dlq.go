package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/kobliat/kobliat-stack/cli/internal/export"
	"github.com/kobliat/kobliat-stack/cli/pkg/output"
	"github.com/kobliat/kobliat-stack/common/dlq"
	natsclient "github.com/kobliat/kobliat-stack/common/messaging/nats"
)

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Inspect the outbound dispatch dead-letter queue",
	Long: `Dispatch jobs that exhaust their attempts are kept in the DISPATCH_DLQ
JetStream stream. Nothing replays them automatically.`,
}

var dlqListCmd = &cobra.Command{
	Use:   "list",
	Short: "List dead-lettered jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return withDLQ(cmd, func(ctx context.Context, store dlq.Store) error {
			entries, err := store.List(ctx, limit)
			if err != nil {
				return err
			}
			if entries == nil {
				entries = []dlq.Entry{}
			}
			if handled, err := output.Structured(outputFormat(cmd), entries); handled {
				return err
			}
			if len(entries) == 0 {
				output.Info("Dead-letter queue is empty")
				return nil
			}
			table := output.NewTable([]string{"ID", "MESSAGE ID", "CHANNEL", "ATTEMPTS", "FAILED AT", "ERROR"})
			for _, e := range entries {
				table.AddRow([]string{
					e.ID, e.MessageID, e.Channel, strconv.Itoa(e.Attempts),
					e.FailedAt.Format(time.RFC3339), truncate(e.Error, 60),
				})
			}
			table.Render()
			return nil
		})
	},
}

var dlqStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show dead-letter queue statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDLQ(cmd, func(ctx context.Context, store dlq.Store) error {
			stats := store.Stats(ctx)
			if handled, err := output.Structured(outputFormat(cmd), stats); handled {
				return err
			}
			table := output.NewTable([]string{"STAT", "VALUE"})
			for _, key := range []string{"backend", "stream", "total_messages", "total_bytes", "first_seq", "last_seq", "error"} {
				if v, ok := stats[key]; ok {
					table.AddRow([]string{key, fmt.Sprint(v)})
				}
			}
			table.Render()
			return nil
		})
	},
}

var dlqPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete every dead-lettered job",
	RunE: func(cmd *cobra.Command, args []string) error {
		if yes, _ := cmd.Flags().GetBool("yes"); !yes {
			return fmt.Errorf("purge is irreversible; pass --yes to confirm")
		}
		return withDLQ(cmd, func(ctx context.Context, store dlq.Store) error {
			if err := store.Purge(ctx); err != nil {
				return err
			}
			output.Success("Dead-letter queue purged")
			return nil
		})
	},
}

var dlqExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export dead-lettered jobs as JSON Lines",
	Example: `  relayctl dlq export --out dlq.jsonl
  relayctl dlq export --s3-bucket ops-exports --s3-endpoint http://localhost:4566`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := activeProfile(cmd)
		if err != nil {
			return err
		}
		out, _ := cmd.Flags().GetString("out")
		bucket, _ := cmd.Flags().GetString("s3-bucket")
		key, _ := cmd.Flags().GetString("s3-key")
		endpoint, _ := cmd.Flags().GetString("s3-endpoint")
		limit, _ := cmd.Flags().GetInt("limit")
		if bucket == "" && out == "" {
			bucket = p.ExportS3Bucket
		}
		if endpoint == "" {
			endpoint = p.AWSEndpoint
		}
		if (out == "") == (bucket == "") {
			return fmt.Errorf("exactly one of --out or --s3-bucket is required")
		}

		var dst export.Destination
		if out != "" {
			dst = export.FileDestination{Path: out}
		} else {
			if key == "" {
				key = export.DefaultKey(time.Now())
			}
			s3dst, err := export.NewS3Destination(cmd.Context(), bucket, key, p.AWSRegion, endpoint)
			if err != nil {
				return err
			}
			dst = s3dst
		}

		return withDLQ(cmd, func(ctx context.Context, store dlq.Store) error {
			n, err := export.Run(ctx, store, dst, limit)
			if err != nil {
				return err
			}
			output.Success("Exported %d dead-lettered job(s) to %s", n, dst)
			return nil
		})
	},
}

// withDLQ connects to the profile's NATS server for the duration of fn.
func withDLQ(cmd *cobra.Command, fn func(ctx context.Context, store dlq.Store) error) error {
	p, err := activeProfile(cmd)
	if err != nil {
		return err
	}
	natsCfg := natsclient.DefaultConfig()
	natsCfg.URL = p.NATSURL
	natsCfg.Name = "relayctl"

	js, err := natsclient.NewJetStreamClient(natsCfg)
	if err != nil {
		return fmt.Errorf("connect to NATS at %s: %w", p.NATSURL, err)
	}
	defer js.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	store, err := dlq.NewJetStreamQueue(ctx, js, newLogger(cmd))
	if err != nil {
		return err
	}
	return fn(ctx, store)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func init() {
	rootCmd.AddCommand(dlqCmd)
	dlqCmd.AddCommand(dlqListCmd)
	dlqCmd.AddCommand(dlqStatsCmd)
	dlqCmd.AddCommand(dlqPurgeCmd)
	dlqCmd.AddCommand(dlqExportCmd)

	dlqListCmd.Flags().Int("limit", dlq.DefaultListLimit, "maximum entries to show")
	dlqPurgeCmd.Flags().Bool("yes", false, "confirm the purge")
	dlqExportCmd.Flags().String("out", "", "local file to write")
	dlqExportCmd.Flags().String("s3-bucket", "", "bucket to upload to (default: profile export_s3_bucket)")
	dlqExportCmd.Flags().String("s3-key", "", "object key (default: dispatch-dlq/<timestamp>.jsonl)")
	dlqExportCmd.Flags().String("s3-endpoint", "", "S3-compatible endpoint, e.g. LocalStack")
	dlqExportCmd.Flags().Int("limit", 1000, "maximum entries to export")
}
