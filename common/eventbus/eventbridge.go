package eventbus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
)

const defaultEventBusName = "kobliat-events"

// PutEventsAPI is the subset of the EventBridge client the transport calls.
type PutEventsAPI interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// EventBridgeTransport puts each envelope as a single entry on an event bus.
// The topic becomes the detail type and the trace id the trace header.
type EventBridgeTransport struct {
	client  PutEventsAPI
	busName string
}

// NewEventBridgeTransport loads AWS credentials from the default chain. A
// non-empty Endpoint points the client at LocalStack.
func NewEventBridgeTransport(ctx context.Context, cfg EventBridgeConfig) (*EventBridgeTransport, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := eventbridge.NewFromConfig(awsCfg, func(o *eventbridge.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewEventBridgeTransportWithClient(client, cfg.EventBusName), nil
}

// NewEventBridgeTransportWithClient wraps an existing client.
func NewEventBridgeTransportWithClient(client PutEventsAPI, busName string) *EventBridgeTransport {
	if busName == "" {
		busName = defaultEventBusName
	}
	return &EventBridgeTransport{client: client, busName: busName}
}

func (t *EventBridgeTransport) Name() string { return string(TransportEventBridge) }

func (t *EventBridgeTransport) Send(ctx context.Context, env Envelope) error {
	detail, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	out, err := t.client.PutEvents(ctx, &eventbridge.PutEventsInput{
		Entries: []types.PutEventsRequestEntry{{
			Source:       aws.String(env.SourceService()),
			DetailType:   aws.String(env.Topic()),
			Detail:       aws.String(string(detail)),
			EventBusName: aws.String(t.busName),
			Time:         aws.Time(env.OccurredAt()),
			TraceHeader:  aws.String(env.TraceID()),
		}},
	})
	if err != nil {
		return fmt.Errorf("put events: %w", err)
	}
	if out.FailedEntryCount > 0 {
		code, msg := "unknown", ""
		if len(out.Entries) > 0 {
			code = aws.ToString(out.Entries[0].ErrorCode)
			msg = aws.ToString(out.Entries[0].ErrorMessage)
		}
		return fmt.Errorf("put events rejected entry: %s %s", code, msg)
	}
	return nil
}

func (t *EventBridgeTransport) Close() error { return nil }
