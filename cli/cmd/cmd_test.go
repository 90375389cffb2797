package cmd

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fatih/color"
	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kobliat/kobliat-stack/cli/internal/tail"
)

func init() {
	color.NoColor = true
}

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// run executes relayctl with an isolated config file.
func run(t *testing.T, args ...string) error {
	t.Helper()
	resetFlags(rootCmd)
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	rootCmd.SetArgs(append([]string{"--config", cfgPath}, args...))
	return rootCmd.ExecuteContext(context.Background())
}

func TestCommandsRegistered(t *testing.T) {
	want := map[string][]string{
		"config":  {"show", "use"},
		"migrate": {"up", "down", "version"},
		"publish": nil,
		"webhook": {"simulate"},
		"dlq":     {"list", "stats", "purge", "export"},
		"events":  {"tail"},
	}

	registered := map[string]*cobra.Command{}
	for _, c := range rootCmd.Commands() {
		registered[c.Name()] = c
	}
	for name, subs := range want {
		c, ok := registered[name]
		require.True(t, ok, "command %q not registered", name)
		var got []string
		for _, sub := range c.Commands() {
			got = append(got, sub.Name())
		}
		assert.ElementsMatch(t, subs, got, name)
	}
}

func TestPublish_LogTransport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "customer.yaml")
	require.NoError(t, os.WriteFile(path, []byte("customer_id: c-1\nexternal_id: \"15550001111\"\n"), 0o600))

	err := run(t, "publish", "customer.created", "--file", path, "--transport", "log", "--trace-id", "trace-cli", "--output", "json")
	assert.NoError(t, err)
}

func TestPublish_Rejections(t *testing.T) {
	err := run(t, "publish", "customer.deleted", "--transport", "log")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown topic")

	assert.NoError(t, run(t, "publish", "customer.deleted", "--transport", "log", "--force"))

	err = run(t, "publish", "customer.created", "--transport", "carrier-pigeon")
	assert.Error(t, err)

	err = run(t, "publish", "customer.created", "--transport", "log", "--file", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	assert.Error(t, run(t, "publish"))
}

func TestWebhookSimulate(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/webhooks/whatsapp", r.URL.Path)
		status := http.StatusCreated
		body := `{"status":"received"}`
		if calls.Add(1)%2 == 0 {
			status = http.StatusOK
			body = `{"status":"ignored_duplicate"}`
		}
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	defer srv.Close()

	err := run(t, "webhook", "simulate", "--gateway-url", srv.URL, "--count", "2", "--duplicate", "--seed", "3")
	require.NoError(t, err)
	assert.Equal(t, int32(4), calls.Load())

	assert.Error(t, run(t, "webhook", "simulate", "--gateway-url", srv.URL, "--count", "0"))
	assert.Error(t, run(t, "webhook", "simulate", "--gateway-url", srv.URL, "--shape", "xml"))
}

func TestDLQ_GuardsRunBeforeConnecting(t *testing.T) {
	err := run(t, "dlq", "purge")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--yes")

	err = run(t, "dlq", "export", "--out", "a.jsonl", "--s3-bucket", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one")
}

func TestMigrate_DownRequiresPositiveSteps(t *testing.T) {
	err := run(t, "migrate", "down", "--steps", "0", "--dir", "migrations", "--dsn", "postgres://localhost/x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--steps")
}

func TestConfig_ShowAndUse(t *testing.T) {
	assert.NoError(t, run(t, "config", "show", "--output", "yaml"))
	assert.Error(t, run(t, "config", "use", "staging"))
	assert.Error(t, run(t, "config", "show", "--profile", "staging"))
}

func TestEventPrinter(t *testing.T) {
	at := time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)
	ev := tail.Event{
		Subject:    "customer.created",
		EventID:    "evt-1",
		TraceID:    "trace-1",
		OccurredAt: &at,
		Payload:    map[string]any{"customer_id": "c-1"},
	}

	var buf bytes.Buffer
	emit, err := eventPrinter(&buf, "table")
	require.NoError(t, err)
	require.NoError(t, emit(ev))
	require.NoError(t, emit(tail.Event{Subject: "media.uploaded", Raw: "plain"}))
	assert.Equal(t,
		"2024-07-01T09:00:00Z  customer.created                  trace-1  {\"customer_id\":\"c-1\"}\n"+
			"-  media.uploaded                    -  plain\n",
		buf.String())

	buf.Reset()
	emit, err = eventPrinter(&buf, "json")
	require.NoError(t, err)
	require.NoError(t, emit(ev))
	require.NoError(t, emit(ev))
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	assert.JSONEq(t, `{"subject":"customer.created","event_id":"evt-1","trace_id":"trace-1",
		"occurred_at":"2024-07-01T09:00:00Z","payload":{"customer_id":"c-1"}}`, string(lines[0]))

	_, err = eventPrinter(&buf, "xml")
	assert.Error(t, err)
}

func TestEventsTail(t *testing.T) {
	assert.ErrorContains(t, run(t, "events", "tail", "--count", "-1"), "--count")
	assert.ErrorContains(t, run(t, "events", "tail", "--output", "xml"), "unknown output format")

	srv, err := natsserver.NewServer(&natsserver.Options{Host: "127.0.0.1", Port: -1})
	require.NoError(t, err)
	srv.Start()
	t.Cleanup(srv.Shutdown)
	require.True(t, srv.ReadyForConnections(5*time.Second))
	t.Setenv("RELAYCTL_NATS_URL", srv.ClientURL())

	assert.NoError(t, run(t, "events", "tail", "message.>", "--timeout", "100ms"))
}
