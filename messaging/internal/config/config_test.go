package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8083, cfg.Server.Port)
	assert.Equal(t, "messaging", cfg.Database.Database)
	assert.Equal(t, "messaging-service", cfg.EventBus.SourceService)
	assert.Equal(t, QueueMemory, cfg.Dispatch.Queue)
	assert.Equal(t, 4, cfg.Dispatch.Workers)
	assert.Equal(t, "outbound-dispatcher", cfg.Dispatch.ConsumerName)
	assert.Equal(t, "http://localhost:9000/whatsapp/send", cfg.Dispatch.Channels.WhatsAppURL)
	assert.Equal(t, "http://localhost:9000/sms/send", cfg.Dispatch.Channels.SMSURL)
	assert.Equal(t, 10*time.Second, cfg.Dispatch.Channels.Timeout)
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "messaging.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
dispatch:
  queue: jetstream
  workers: 2
  channels:
    whatsapp_url: http://provider/wa
    timeout: 3s
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, QueueJetStream, cfg.Dispatch.Queue)
	assert.Equal(t, 2, cfg.Dispatch.Workers)
	assert.Equal(t, "http://provider/wa", cfg.Dispatch.Channels.WhatsAppURL)
	assert.Equal(t, 3*time.Second, cfg.Dispatch.Channels.Timeout)
	assert.Equal(t, "http://localhost:9000/sms/send", cfg.Dispatch.Channels.SMSURL)
}

func TestLoadDispatcher_UsesOwnPrefix(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DISPATCHER_DISPATCH_CONSUMER_NAME", "dispatcher-b")
	t.Setenv("MESSAGING_DISPATCH_CONSUMER_NAME", "ignored")

	cfg, err := LoadDispatcher("")
	require.NoError(t, err)
	assert.Equal(t, "dispatcher-b", cfg.Dispatch.ConsumerName)
}
