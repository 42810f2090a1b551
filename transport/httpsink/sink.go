package httpsink

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

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"musicbattle/transport"
)

// Config configures the callback sink.
type Config struct {
	URL       string
	AuthToken string
	Timeout   time.Duration
	Transport http.RoundTripper
}

// Sink posts outbound messages to the chat adapter's callback endpoint.
type Sink struct {
	url       string
	authToken string
	timeout   time.Duration
	http      *http.Client
}

// New constructs a callback sink.
func New(cfg Config) (*Sink, error) {
	target := strings.TrimSpace(cfg.URL)
	if target == "" {
		return nil, errors.New("httpsink: callback url required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rt := cfg.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}
	return &Sink{
		url:       target,
		authToken: strings.TrimSpace(cfg.AuthToken),
		timeout:   timeout,
		http:      &http.Client{Timeout: timeout, Transport: otelhttp.NewTransport(rt)},
	}, nil
}

// Send delivers msg. Any non-2xx status is an error.
func (s *Sink) Send(ctx context.Context, msg transport.Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.authToken)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("httpsink: deliver: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("httpsink: deliver failed: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
