package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/okian/pulse/pkg/model"
)

// defaultHTTPTimeout bounds a single POST when no client is supplied.
const defaultHTTPTimeout = 10 * time.Second

// ErrDispatch marks a failed delivery attempt.
var ErrDispatch = errors.New("metrics dispatch failed")

// StatusError reports a non-2xx ingestion response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ingestion responded %d: %s", e.StatusCode, e.Body)
}

// HTTPDispatcher POSTs full snapshots to the ingestion endpoint. Every
// non-2xx response counts as a failure, 400 included.
type HTTPDispatcher struct {
	baseURL string
	client  *http.Client

	mu       sync.RWMutex
	endpoint string
}

// NewHTTPDispatcher creates a dispatcher for baseURL. A nil client gets a
// default with a timeout.
func NewHTTPDispatcher(baseURL string, client *http.Client) *HTTPDispatcher {
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &HTTPDispatcher{
		baseURL:  strings.TrimRight(baseURL, "/"),
		endpoint: "/api/metrics",
		client:   client,
	}
}

// SetEndpoint changes the ingestion path, e.g. after a config update.
func (d *HTTPDispatcher) SetEndpoint(endpoint string) {
	if endpoint == "" {
		return
	}
	d.mu.Lock()
	d.endpoint = endpoint
	d.mu.Unlock()
}

// URL returns the full ingestion URL.
func (d *HTTPDispatcher) URL() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if strings.HasPrefix(d.endpoint, "http://") || strings.HasPrefix(d.endpoint, "https://") {
		return d.endpoint
	}
	return d.baseURL + "/" + strings.TrimLeft(d.endpoint, "/")
}

// Dispatch sends one snapshot.
func (d *HTTPDispatcher) Dispatch(ctx context.Context, event model.MetricEvent) error { //nolint:gocritic // hugeParam: snapshot passed by value
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("%w: encode snapshot: %w", ErrDispatch, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.URL(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build request: %w", ErrDispatch, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDispatch, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %w", ErrDispatch, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))})
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
