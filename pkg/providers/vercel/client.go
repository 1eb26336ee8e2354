// Package vercel is a minimal client for the deployment platform's
// environment-variable API. It exists to push CloudFormation stack
// outputs and derived secrets into platform projects; it is not a
// general API binding.
package vercel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/umbrohq/stagetrust/pkg/stagetrust"
)

// DefaultBaseURL is the platform API endpoint.
const DefaultBaseURL = "https://api.vercel.com"

// Client talks to the platform API. Construct with NewClient.
type Client struct {
	token      string
	teamID     string
	baseURL    string
	httpClient *http.Client
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithTeamID scopes API calls to a team.
func WithTeamID(teamID string) ClientOption {
	return func(c *Client) { c.teamID = teamID }
}

// WithBaseURL overrides the API endpoint, for tests.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) { c.baseURL = baseURL }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a platform API client. The token is required and
// never appears in errors or logs.
func NewClient(token string, opts ...ClientOption) (*Client, error) {
	if token == "" {
		return nil, stagetrust.ErrConfiguration(fmt.Sprintf("%s is not set", stagetrust.EnvVercelToken))
	}
	c := &Client{
		token:   token,
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// envVarRequest is the create-or-update payload. Type "encrypted"
// marks the value sensitive on the platform side.
type envVarRequest struct {
	Key    string   `json:"key"`
	Value  string   `json:"value"`
	Type   string   `json:"type"`
	Target []string `json:"target"`
}

// UpsertEnvironmentVariable creates or updates one environment
// variable on a project, scoped to the given target environments.
// Sensitive values are stored encrypted and are write-only on the
// platform side.
func (c *Client) UpsertEnvironmentVariable(ctx context.Context, project, key, value string, targets []string, sensitive bool) error {
	if project == "" {
		return stagetrust.ErrConfiguration("project is required").WithOperation("upsert_env_var")
	}
	if key == "" {
		return stagetrust.ErrValidation("environment variable key is required").WithOperation("upsert_env_var")
	}
	if len(targets) == 0 {
		return stagetrust.ErrValidation("at least one target environment is required").
			WithOperation("upsert_env_var").WithResource("env:var", key)
	}

	varType := "plain"
	if sensitive {
		varType = "encrypted"
	}
	body, err := json.Marshal(envVarRequest{
		Key:    key,
		Value:  value,
		Type:   varType,
		Target: targets,
	})
	if err != nil {
		return stagetrust.ErrInternal("failed to encode request").WithCause(err)
	}

	endpoint := fmt.Sprintf("%s/v10/projects/%s/env", c.baseURL, url.PathEscape(project))
	query := url.Values{"upsert": {"true"}}
	if c.teamID != "" {
		query.Set("teamId", c.teamID)
	}
	endpoint += "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return stagetrust.ErrInternal("failed to build request").WithCause(err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return stagetrust.ErrNetwork("platform API request failed").
			WithCause(err).WithResource("env:var", key)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return apiError(resp, key)
}

// apiError maps a platform API response to an error category. The
// response body is read for the platform's error code but variable
// values never appear in the result.
func apiError(resp *http.Response, key string) error {
	var payload struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if body, err := io.ReadAll(io.LimitReader(resp.Body, 4096)); err == nil {
		_ = json.Unmarshal(body, &payload)
	}

	detail := payload.Error.Code
	if detail == "" {
		detail = resp.Status
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return stagetrust.ErrPermission(fmt.Sprintf("platform API rejected credentials: %s", detail)).
			WithResource("env:var", key)
	case resp.StatusCode == http.StatusNotFound:
		return stagetrust.ErrNotFound("vercel:project", detail)
	case resp.StatusCode == http.StatusConflict:
		return stagetrust.ErrConflict("env:var", key)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return stagetrust.ErrNetwork(fmt.Sprintf("platform API unavailable: %s", detail)).
			WithResource("env:var", key)
	default:
		return stagetrust.ErrInternal(fmt.Sprintf("platform API error: %s", detail)).
			WithResource("env:var", key).WithDetail("status", resp.StatusCode)
	}
}
