// Package simulate builds synthetic provider webhooks and posts them to the
// gateway.
package simulate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/kobliat/kobliat-stack/common/middleware"
)

// Shape selects one of the payload layouts the gateway understands.
type Shape string

const (
	ShapeFlat     Shape = "flat"
	ShapeMessages Shape = "messages"
	ShapeCloud    Shape = "cloud"
)

// Shapes lists the supported layouts.
func Shapes() []Shape {
	return []Shape{ShapeFlat, ShapeMessages, ShapeCloud}
}

// Webhook is a generated payload and the fields it carries.
type Webhook struct {
	MessageID string
	From      string
	Name      string
	Body      string
	Payload   []byte
}

// Response is the gateway's answer to one webhook.
type Response struct {
	StatusCode int
	Status     string
}

type Simulator struct {
	faker      *gofakeit.Faker
	gatewayURL string
	httpClient *http.Client
}

// New returns a simulator. A zero seed draws a random one; any other seed
// makes the generated payloads reproducible.
func New(gatewayURL string, seed int64, timeout time.Duration) *Simulator {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Simulator{
		faker:      gofakeit.New(seed),
		gatewayURL: strings.TrimRight(gatewayURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Generate builds one inbound message in the given layout.
func (s *Simulator) Generate(shape Shape) (Webhook, error) {
	w := Webhook{
		MessageID: "wamid." + strings.ReplaceAll(s.faker.UUID(), "-", ""),
		From:      "1" + s.faker.Phone(),
		Name:      s.faker.Name(),
		Body:      s.faker.Sentence(s.faker.Number(3, 12)),
	}

	message := map[string]any{
		"id":   w.MessageID,
		"from": w.From,
		"type": "text",
		"text": map[string]any{"body": w.Body},
	}
	contacts := []any{map[string]any{
		"wa_id":   w.From,
		"profile": map[string]any{"name": w.Name},
	}}

	var doc map[string]any
	switch shape {
	case ShapeFlat:
		doc = map[string]any{"id": w.MessageID, "from": w.From, "name": w.Name, "body": w.Body}
	case ShapeMessages:
		doc = map[string]any{"messages": []any{message}, "contacts": contacts}
	case ShapeCloud, "":
		doc = map[string]any{
			"object": "whatsapp_business_account",
			"entry": []any{map[string]any{
				"id": s.faker.Numerify("##########"),
				"changes": []any{map[string]any{
					"field": "messages",
					"value": map[string]any{
						"messaging_product": "whatsapp",
						"messages":          []any{message},
						"contacts":          contacts,
					},
				}},
			}},
		}
	default:
		return Webhook{}, fmt.Errorf("unknown shape %q (supported: flat, messages, cloud)", shape)
	}

	payload, err := json.Marshal(doc)
	if err != nil {
		return Webhook{}, err
	}
	w.Payload = payload
	return w, nil
}

// Send posts payload to /webhooks/{provider}. A non-2xx answer is reported in
// the Response, not as an error.
func (s *Simulator) Send(ctx context.Context, provider string, payload []byte, traceID string) (Response, error) {
	url := s.gatewayURL + "/webhooks/" + provider
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return Response{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if traceID != "" {
		req.Header.Set(middleware.HeaderTraceID, traceID)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	out := Response{StatusCode: resp.StatusCode}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var decoded struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	}
	if json.Unmarshal(body, &decoded) == nil {
		out.Status = decoded.Status
		if out.Status == "" {
			out.Status = decoded.Error
		}
	}
	return out, nil
}
