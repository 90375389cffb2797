package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/kobliat/kobliat-stack/common/logging"
)

// LogTransport writes one structured log line per envelope. Used in development
// and tests in place of a broker.
type LogTransport struct {
	logger *logging.Logger
}

func NewLogTransport(logger *logging.Logger) *LogTransport {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogTransport{logger: logger}
}

func (t *LogTransport) Name() string { return string(TransportLog) }

func (t *LogTransport) Send(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	t.logger.InfoContext(ctx, "EventBus (log transport): published event",
		logging.Topic(env.Topic()),
		slog.Any("envelope", json.RawMessage(data)),
	)
	return nil
}

func (t *LogTransport) Close() error { return nil }
