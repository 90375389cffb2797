package eventbus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	restProxyContentType = "application/vnd.kafka.json.v2+json"
	restProxyAccept      = "application/vnd.kafka.v2+json"
)

// RESTProxyTransport posts each envelope to a Kafka REST proxy.
type RESTProxyTransport struct {
	baseURL    string
	httpClient *http.Client
}

type restProxyRecord struct {
	Key   string   `json:"key"`
	Value Envelope `json:"value"`
}

type restProxyRequest struct {
	Records []restProxyRecord `json:"records"`
}

// NewRESTProxyTransport builds the transport. Timeout defaults to 5s.
func NewRESTProxyTransport(cfg RESTProxyConfig) *RESTProxyTransport {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &RESTProxyTransport{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (t *RESTProxyTransport) Name() string { return string(TransportRESTProxy) }

// Send issues POST /topics/{topic} with a single record keyed by event id.
func (t *RESTProxyTransport) Send(ctx context.Context, env Envelope) error {
	body, err := json.Marshal(restProxyRequest{
		Records: []restProxyRecord{{Key: env.EventID(), Value: env}},
	})
	if err != nil {
		return fmt.Errorf("marshal records: %w", err)
	}

	endpoint := t.baseURL + "/topics/" + url.PathEscape(env.Topic())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", restProxyContentType)
	req.Header.Set("Accept", restProxyAccept)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("rest proxy returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (t *RESTProxyTransport) Close() error {
	t.httpClient.CloseIdleConnections()
	return nil
}
