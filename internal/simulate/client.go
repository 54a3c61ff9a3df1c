package simulate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/okian/pulse/pkg/aggregate"
	"github.com/okian/pulse/pkg/model"
)

// apiClient reads back what the server stored.
type apiClient struct {
	client   *http.Client
	baseURL  string
	endpoint string
}

func newAPIClient(client *http.Client, baseURL, endpoint string) *apiClient {
	return &apiClient{client: client, baseURL: baseURL, endpoint: endpoint}
}

// health checks GET /healthz.
func (c *apiClient) health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", http.NoBody)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("service health check failed with status: %d", resp.StatusCode)
	}
	return nil
}

// list fetches the stored rows of app.
func (c *apiClient) list(ctx context.Context, app string) ([]model.MetricEvent, error) {
	var out []model.MetricEvent
	err := c.getJSON(ctx, c.endpoint, c.query(app, ""), &out)
	return out, err
}

// summary fetches the aggregate of app; dedupe is "" or "latest".
func (c *apiClient) summary(ctx context.Context, app, dedupe string) (aggregate.Report, error) {
	var out aggregate.Report
	err := c.getJSON(ctx, c.endpoint+"/summary", c.query(app, dedupe), &out)
	return out, err
}

func (c *apiClient) query(app, dedupe string) url.Values {
	q := url.Values{}
	q.Set("appName", app)
	q.Set("limit", strconv.Itoa(queryLimit))
	if dedupe != "" {
		q.Set("dedupe", dedupe)
	}
	return q
}

func (c *apiClient) getJSON(ctx context.Context, path string, q url.Values, v any) error {
	target := c.baseURL + path + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("GET %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("GET %s: decode: %w", path, err)
	}
	return nil
}
