// Package webhook provides the outbound HTTP caller behind workflow webhook
// steps.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/flowmesh-ai/flowmesh/core"
)

// DefaultTimeout bounds a single webhook call.
const DefaultTimeout = 15 * time.Second

// maxResponseBytes caps how much of a webhook response is read back.
const maxResponseBytes = 1 << 20

// Options configures a Caller.
type Options struct {
	// Timeout bounds each outbound call. Defaults to DefaultTimeout.
	Timeout time.Duration

	// HTTPClient overrides the underlying client. Defaults to a dedicated
	// client with the configured timeout.
	HTTPClient *http.Client

	// Headers are added to every outbound request.
	Headers map[string]string
}

// Caller performs JSON-over-HTTP webhook calls.
type Caller struct {
	client  *http.Client
	headers map[string]string
}

var _ core.WebhookCaller = (*Caller)(nil)

// NewCaller creates a webhook caller.
func NewCaller(optFns ...func(o *Options)) *Caller {
	opts := Options{
		Timeout: DefaultTimeout,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	return &Caller{client: client, headers: opts.Headers}
}

// Call sends the body as JSON and decodes the JSON response. Non-2xx status
// codes are errors. A non-JSON or empty response body yields a map carrying
// the status code only.
func (c *Caller) Call(ctx context.Context, url, method string, body map[string]any) (map[string]any, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode webhook body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webhook request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read webhook response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	out := map[string]any{"status_code": resp.StatusCode}
	if len(raw) > 0 {
		var decoded map[string]any
		if err := json.Unmarshal(raw, &decoded); err == nil {
			for k, v := range decoded {
				out[k] = v
			}
		} else {
			out["body"] = string(raw)
		}
	}
	return out, nil
}
