package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kestrelops/jitgate/internal/accessrequest"
	"github.com/kestrelops/jitgate/internal/metrics"
)

const defaultTimeout = 30 * time.Second

// Client talks to a jitgate request service over JSON HTTP.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a client for the request service at baseURL. An empty
// token sends unauthenticated requests.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:      strings.TrimSpace(token),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

// Health checks whether the request service is reachable.
func (c *Client) Health(ctx context.Context) error {
	if err := c.do(ctx, http.MethodGet, "/health", nil, nil); err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	return nil
}

// FetchMetrics returns the service's runtime metrics snapshot.
func (c *Client) FetchMetrics(ctx context.Context) (metrics.RuntimeSnapshot, error) {
	var out struct {
		Metrics metrics.RuntimeSnapshot `json:"metrics"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/metrics", nil, &out); err != nil {
		return metrics.RuntimeSnapshot{}, fmt.Errorf("fetch metrics: %w", err)
	}
	return out.Metrics, nil
}

// FetchDurationOptions returns the selectable expiry options for an
// access request against the given cluster.
func (c *Client) FetchDurationOptions(ctx context.Context, clusterID string, roles []string, resources []accessrequest.ResourceRef) ([]accessrequest.DurationOption, error) {
	body := map[string]any{
		"cluster_id": clusterID,
		"roles":      roles,
		"resources":  resources,
	}
	var out struct {
		Options []accessrequest.DurationOption `json:"options"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/durations", body, &out); err != nil {
		return nil, fmt.Errorf("fetch duration options: %w", err)
	}
	return out.Options, nil
}

// CreateAccessRequest submits a new access request and returns the
// created record.
func (c *Client) CreateAccessRequest(ctx context.Context, input accessrequest.CreateInput) (accessrequest.Request, error) {
	var out struct {
		Request accessrequest.Request `json:"request"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/requests", input, &out); err != nil {
		return accessrequest.Request{}, fmt.Errorf("create access request: %w", err)
	}
	return out.Request, nil
}

// ListRequests returns requests, optionally filtered by status.
func (c *Client) ListRequests(ctx context.Context, status accessrequest.Status) ([]accessrequest.Request, error) {
	path := "/v1/requests"
	if status != "" {
		path += "?status=" + url.QueryEscape(string(status))
	}
	var out struct {
		Requests []accessrequest.Request `json:"requests"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	return out.Requests, nil
}

// GetRequest returns a single request by id.
func (c *Client) GetRequest(ctx context.Context, id string) (accessrequest.Request, error) {
	var out struct {
		Request accessrequest.Request `json:"request"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/requests/"+url.PathEscape(id), nil, &out); err != nil {
		return accessrequest.Request{}, fmt.Errorf("get request: %w", err)
	}
	return out.Request, nil
}

// ApproveRequest marks a pending request as approved.
func (c *Client) ApproveRequest(ctx context.Context, id string, decision accessrequest.DecisionInput) (accessrequest.Request, error) {
	return c.decide(ctx, id, "approve", decision)
}

// DenyRequest marks a pending request as denied.
func (c *Client) DenyRequest(ctx context.Context, id string, decision accessrequest.DecisionInput) (accessrequest.Request, error) {
	return c.decide(ctx, id, "deny", decision)
}

func (c *Client) decide(ctx context.Context, id, action string, decision accessrequest.DecisionInput) (accessrequest.Request, error) {
	body := map[string]any{
		"decided_by": decision.DecidedBy,
		"note":       decision.Note,
	}
	var out struct {
		Request accessrequest.Request `json:"request"`
	}
	path := "/v1/requests/" + url.PathEscape(id) + "/" + action
	if err := c.do(ctx, http.MethodPost, path, body, &out); err != nil {
		return accessrequest.Request{}, fmt.Errorf("%s request: %w", action, err)
	}
	return out.Request, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Message != "" {
			return fmt.Errorf("%s", apiErr.Message)
		}
		return fmt.Errorf("request service returned status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
