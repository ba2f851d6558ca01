// ABOUTME: REST client for the platform API that owns agents, grants and billing
// ABOUTME: Each method issues exactly one bearer-authenticated request and returns the body as opaque JSON

package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/2389/agentmcp/internal/metrics"
)

// maxResponseSize caps how much of a platform response body is read (8MB).
const maxResponseSize = 8 << 20

// UserAgent is sent on every platform request.
var UserAgent = "agentmcp/dev"

// Config holds configuration for the platform client.
type Config struct {
	BaseURL    string
	ServiceKey string
	Timeout    time.Duration
	HTTPClient *http.Client // optional, replaces the default instrumented client
	Logger     *slog.Logger
}

// Client talks to the platform REST API.
type Client struct {
	baseURL    string
	serviceKey string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a platform client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("platform base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parsing platform base URL: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		serviceKey: cfg.ServiceKey,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// User is the identity behind an API key.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// CreateAgentRequest is the body of POST /agents.
type CreateAgentRequest struct {
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	Instructions string `json:"instructions"`
	Type         string `json:"type"`
	IsPublic     bool   `json:"is_public"`
	IsShareable  bool   `json:"is_shareable"`
}

// UpdateAgentRequest is the body of PATCH /agents/{id}. Nil fields are left unchanged.
type UpdateAgentRequest struct {
	Name         *string `json:"name,omitempty"`
	Description  *string `json:"description,omitempty"`
	Instructions *string `json:"instructions,omitempty"`
	Type         *string `json:"type,omitempty"`
	IsPublic     *bool   `json:"is_public,omitempty"`
	IsShareable  *bool   `json:"is_shareable,omitempty"`
}

// ListAgentsOptions filters GET /agents.
type ListAgentsOptions struct {
	Type          string
	IncludePublic bool
	Limit         int
	Offset        int
}

// PromptRequest is the body of POST /agents/{id}/chat.
type PromptRequest struct {
	Prompt      string   `json:"prompt"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// ValidateAPIKey resolves the user that owns apiKey.
func (c *Client) ValidateAPIKey(ctx context.Context, apiKey string) (*User, error) {
	body, err := c.do(ctx, "validate_api_key", http.MethodGet, "/auth/validate", apiKey, nil)
	if err != nil {
		return nil, err
	}

	// Platforms answer either {"user": {...}} or the bare user object.
	user := gjson.GetBytes(body, "user")
	if !user.Exists() {
		user = gjson.ParseBytes(body)
	}
	id := user.Get("id").String()
	if id == "" {
		return nil, &Error{StatusCode: http.StatusUnauthorized, Message: "api key did not resolve to a user"}
	}

	return &User{
		ID:    id,
		Email: user.Get("email").String(),
		Name:  user.Get("name").String(),
	}, nil
}

// CreateAgent creates an agent owned by the caller.
func (c *Client) CreateAgent(ctx context.Context, apiKey string, req CreateAgentRequest) (json.RawMessage, error) {
	return c.do(ctx, "create_agent", http.MethodPost, "/agents", apiKey, req)
}

// ListAgents lists agents visible to the caller.
func (c *Client) ListAgents(ctx context.Context, apiKey string, opts ListAgentsOptions) (json.RawMessage, error) {
	q := url.Values{}
	if opts.Type != "" {
		q.Set("type", opts.Type)
	}
	if opts.IncludePublic {
		q.Set("include_public", "true")
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", strconv.Itoa(opts.Offset))
	}

	path := "/agents"
	if encoded := q.Encode(); encoded != "" {
		path += "?" + encoded
	}
	return c.do(ctx, "list_agents", http.MethodGet, path, apiKey, nil)
}

// GetAgent fetches a single agent.
func (c *Client) GetAgent(ctx context.Context, apiKey, agentID string) (json.RawMessage, error) {
	return c.do(ctx, "get_agent", http.MethodGet, agentPath(agentID), apiKey, nil)
}

// UpdateAgent applies a partial update. Ownership is enforced by the platform.
func (c *Client) UpdateAgent(ctx context.Context, apiKey, agentID string, req UpdateAgentRequest) (json.RawMessage, error) {
	return c.do(ctx, "update_agent", http.MethodPatch, agentPath(agentID), apiKey, req)
}

// DeleteAgent permanently deletes an agent.
func (c *Client) DeleteAgent(ctx context.Context, apiKey, agentID string) (json.RawMessage, error) {
	return c.do(ctx, "delete_agent", http.MethodDelete, agentPath(agentID), apiKey, nil)
}

// PromptAgent sends a prompt to an agent and returns the platform's reply.
func (c *Client) PromptAgent(ctx context.Context, apiKey, agentID string, req PromptRequest) (json.RawMessage, error) {
	return c.do(ctx, "prompt_agent", http.MethodPost, agentPath(agentID)+"/chat", apiKey, req)
}

// AddUserToAgent grants a user read access to an agent.
func (c *Client) AddUserToAgent(ctx context.Context, apiKey, agentID, email string) (json.RawMessage, error) {
	body := map[string]string{"email": email}
	return c.do(ctx, "add_user_to_agent", http.MethodPost, agentPath(agentID)+"/users", apiKey, body)
}

// RemoveUserFromAgent revokes a user's access to an agent.
func (c *Client) RemoveUserFromAgent(ctx context.Context, apiKey, agentID, email string) (json.RawMessage, error) {
	path := agentPath(agentID) + "/users/" + url.PathEscape(email)
	return c.do(ctx, "remove_user_from_agent", http.MethodDelete, path, apiKey, nil)
}

// GetUsageReport returns the platform's usage report for the caller.
func (c *Client) GetUsageReport(ctx context.Context, apiKey, period string) (json.RawMessage, error) {
	path := "/usage"
	if period != "" {
		path += "?period=" + url.QueryEscape(period)
	}
	return c.do(ctx, "get_usage_report", http.MethodGet, path, apiKey, nil)
}

// GetPricing returns the platform's published pricing.
func (c *Client) GetPricing(ctx context.Context, apiKey string) (json.RawMessage, error) {
	return c.do(ctx, "get_pricing", http.MethodGet, "/pricing", apiKey, nil)
}

// GetBalance returns a user's prepaid balance in USD using the service key.
func (c *Client) GetBalance(ctx context.Context, userID string) (float64, error) {
	path := "/billing/users/" + url.PathEscape(userID) + "/balance"
	body, err := c.do(ctx, "get_balance", http.MethodGet, path, c.serviceKey, nil)
	if err != nil {
		return 0, err
	}

	balance := gjson.GetBytes(body, "balance")
	if !balance.Exists() {
		return 0, fmt.Errorf("balance response missing balance field")
	}
	return balance.Float(), nil
}

func agentPath(agentID string) string {
	return "/agents/" + url.PathEscape(agentID)
}

// do performs one request. A nil body sends no payload; 2xx responses with an
// empty body are returned as "{}".
func (c *Client) do(ctx context.Context, operation, method, path, apiKey string, body any) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding %s request: %w", operation, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("building %s request: %w", operation, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", UserAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.PlatformRequests.WithLabelValues(operation, "error").Inc()
		c.logger.Warn("platform request failed",
			"operation", operation,
			"method", method,
			"error", err,
		)
		return nil, fmt.Errorf("%w: %s: %v", ErrConnectivity, operation, err)
	}
	defer func() { _ = resp.Body.Close() }()

	metrics.PlatformRequests.WithLabelValues(operation, strconv.Itoa(resp.StatusCode)).Inc()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s response: %v", ErrConnectivity, operation, err)
	}

	c.logger.Debug("platform request",
		"operation", operation,
		"method", method,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{StatusCode: resp.StatusCode, Message: errorMessage(data)}
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return json.RawMessage(`{}`), nil
	}
	if !gjson.ValidBytes(data) {
		return nil, &Error{StatusCode: http.StatusBadGateway, Message: "platform returned invalid JSON"}
	}
	return json.RawMessage(data), nil
}

// errorMessage pulls a human-readable message out of an error body.
func errorMessage(body []byte) string {
	if !gjson.ValidBytes(body) {
		return ""
	}
	for _, path := range []string{"error.message", "error", "message", "detail"} {
		if v := gjson.GetBytes(body, path); v.Exists() && v.Type == gjson.String && v.String() != "" {
			return v.String()
		}
	}
	return ""
}
