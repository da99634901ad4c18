package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/pacerhq/pacer/internal/core"
)

// WebhookConfig configures a WebhookSink.
type WebhookConfig struct {
	URL          string
	Headers      map[string]string
	Timeout      time.Duration
	MaxRetries   int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	UserAgent    string
}

// WebhookPayload is the JSON body posted for each firing.
type WebhookPayload struct {
	EventID    string          `json:"event_id"`
	Gate       string          `json:"gate"`
	Key        string          `json:"key"`
	Kind       string          `json:"kind"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	ReceivedAt time.Time       `json:"received_at"`
	FiredAt    time.Time       `json:"fired_at"`
	RequestID  string          `json:"request_id,omitempty"`
}

// WebhookSink POSTs firings as JSON, retrying transient failures.
type WebhookSink struct {
	url       string
	headers   map[string]string
	userAgent string
	client    *retryablehttp.Client
}

// NewWebhookSink validates cfg and builds the retrying client.
func NewWebhookSink(cfg WebhookConfig) (*WebhookSink, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, errors.New("webhook url is required")
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, fmt.Errorf("webhook url must be http or https: %q", url)
	}

	client := retryablehttp.NewClient()
	client.Logger = nil
	if cfg.MaxRetries >= 0 {
		client.RetryMax = cfg.MaxRetries
	}
	if cfg.RetryWaitMin > 0 {
		client.RetryWaitMin = cfg.RetryWaitMin
	}
	if cfg.RetryWaitMax > 0 {
		client.RetryWaitMax = cfg.RetryWaitMax
	}
	if cfg.Timeout > 0 {
		client.HTTPClient.Timeout = cfg.Timeout
	}

	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = "pacer"
	}

	return &WebhookSink{
		url:       url,
		headers:   cfg.Headers,
		userAgent: userAgent,
		client:    client,
	}, nil
}

func (s *WebhookSink) Name() string { return "webhook" }

// Budget is the longest a Deliver call can take: every attempt timing out
// plus the maximum wait between attempts. Zero when attempts are unbounded.
func (s *WebhookSink) Budget() time.Duration {
	if s.client.HTTPClient.Timeout <= 0 {
		return 0
	}
	retries := time.Duration(max(s.client.RetryMax, 0))
	return s.client.HTTPClient.Timeout*(retries+1) + s.client.RetryWaitMax*retries
}

func (s *WebhookSink) Deliver(ctx context.Context, f core.Firing) error {
	body, err := json.Marshal(WebhookPayload{
		EventID:    f.Event.ID,
		Gate:       f.Event.Gate,
		Key:        f.Event.Key,
		Kind:       string(f.Kind),
		Payload:    f.Event.Payload,
		ReceivedAt: f.Event.ReceivedAt,
		FiredAt:    f.FiredAt,
		RequestID:  f.Event.RequestID,
	})
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", s.userAgent)
	if f.Event.RequestID != "" {
		req.Header.Set("X-Request-ID", f.Event.RequestID)
	}
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
