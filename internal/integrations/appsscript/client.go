// Package appsscript lists Google Apps Script projects and their files.
package appsscript

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"llm-gateway/internal/provider"
)

const (
	SecretToken = "GOOGLE_API_TOKEN"

	defaultBaseURL = "https://script.googleapis.com/v1"
	maxErrorBody   = 1 << 20
)

type Project struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/"); baseURL != "" {
			c.baseURL = baseURL
		}
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type listProjectsResponse struct {
	Projects []struct {
		ScriptID string `json:"scriptId"`
		Title    string `json:"title"`
	} `json:"projects"`
}

// ListProjects returns the projects visible to token. A non-2xx response is
// returned as *provider.StatusError carrying the full upstream body.
func (c *Client) ListProjects(ctx context.Context, token string) ([]Project, error) {
	var payload listProjectsResponse
	if err := c.getJSON(ctx, token, c.baseURL+"/projects", &payload); err != nil {
		return nil, fmt.Errorf("appsscript: list projects: %w", err)
	}
	out := make([]Project, 0, len(payload.Projects))
	for _, p := range payload.Projects {
		out = append(out, Project{ID: p.ScriptID, Title: p.Title})
	}
	return out, nil
}

type contentResponse struct {
	Files []struct {
		Name string `json:"name"`
	} `json:"files"`
}

// ListFiles returns the file names of one project.
func (c *Client) ListFiles(ctx context.Context, token, scriptID string) ([]string, error) {
	var payload contentResponse
	contentURL := c.baseURL + "/projects/" + url.PathEscape(scriptID) + "/content"
	if err := c.getJSON(ctx, token, contentURL, &payload); err != nil {
		return nil, fmt.Errorf("appsscript: list files: %w", err)
	}
	out := make([]string, 0, len(payload.Files))
	for _, f := range payload.Files {
		out = append(out, f.Name)
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, token, rawURL string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return &provider.StatusError{
			StatusCode: res.StatusCode,
			URL:        rawURL,
			Body:       string(body),
		}
	}
	if err := json.NewDecoder(res.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
