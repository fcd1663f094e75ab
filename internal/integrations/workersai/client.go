// Package workersai is the Cloudflare Workers AI backend. Chat goes through
// the account's OpenAI-compatible endpoint; the catalog and AutoRAG search
// use the native REST API.
package workersai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"llm-gateway/internal/domain"
	"llm-gateway/internal/integrations/openai"
	"llm-gateway/internal/provider"
)

const (
	Name            = "cloudflare"
	DefaultModel    = "@cf/meta/llama-3.1-8b-instruct"
	SecretToken     = "CLOUDFLARE_AI_TOKEN"
	SecretAccountID = "CLOUDFLARE_ACCOUNT_ID"
	SecretAutoRAG   = "CLOUDFLARE_AUTORAG_NAME"

	defaultBaseURL = "https://api.cloudflare.com/client/v4"
)

type Provider struct {
	baseURL    string
	httpClient *http.Client
	client     provider.Lazy[*goopenai.Client]
}

type Option func(*Provider)

func WithBaseURL(baseURL string) Option {
	return func(p *Provider) {
		if baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/"); baseURL != "" {
			p.baseURL = baseURL
		}
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = httpClient
	}
}

func NewProvider(opts ...Option) *Provider {
	p := &Provider{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Name() string         { return Name }
func (p *Provider) DefaultModel() string { return DefaultModel }
func (p *Provider) RequiredSecrets() []string {
	return []string{SecretToken, SecretAccountID}
}

// KeepModel keeps the common chat families.
func (p *Provider) KeepModel(m provider.ModelInfo) bool {
	return strings.Contains(m.ID, "llama") || strings.Contains(m.ID, "mistral")
}

func (p *Provider) Build(model string, creds provider.Credentials) (provider.CallableModel, error) {
	if err := creds.Require(Name, p.RequiredSecrets()...); err != nil {
		return nil, err
	}
	token, account := creds.Get(SecretToken), creds.Get(SecretAccountID)
	client := p.client.Get(func() *goopenai.Client {
		return openai.NewSDKClient(token, p.accountURL(account)+"/ai/v1", p.httpClient)
	})
	return &chatModel{
		chat:     openai.NewChatModel(client, model),
		provider: p,
		token:    token,
		account:  account,
	}, nil
}

func (p *Provider) accountURL(account string) string {
	return p.baseURL + "/accounts/" + url.PathEscape(account)
}

type chatModel struct {
	chat     *openai.ChatModel
	provider *Provider
	token    string
	account  string
}

func (m *chatModel) Stream(ctx context.Context, messages []domain.Message) (<-chan provider.Chunk, error) {
	ch, err := m.chat.Stream(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("workersai: %w", err)
	}
	return ch, nil
}

type searchModelsResponse struct {
	Success bool `json:"success"`
	Result  []struct {
		Name string `json:"name"`
	} `json:"result"`
}

func (m *chatModel) ListModels(ctx context.Context) ([]provider.ModelInfo, error) {
	listURL := m.provider.accountURL(m.account) + "/ai/models/search?per_page=1000"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, listURL, nil)
	if err != nil {
		return nil, fmt.Errorf("workersai: create list request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.token)

	raw, err := m.provider.doJSONRequest(req, listURL)
	if err != nil {
		return nil, fmt.Errorf("workersai: list models: %w", err)
	}
	var payload searchModelsResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("workersai: decode models: %w", err)
	}
	out := make([]provider.ModelInfo, 0, len(payload.Result))
	for _, r := range payload.Result {
		out = append(out, provider.ModelInfo{ID: r.Name})
	}
	return out, nil
}

// Search forwards a text query to an AutoRAG index and returns the raw
// upstream response. The caller owns the response body.
func (p *Provider) Search(ctx context.Context, creds provider.Credentials, rag, query string) (*http.Response, error) {
	body, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return nil, fmt.Errorf("workersai: marshal search: %w", err)
	}
	searchURL := p.accountURL(creds.Get(SecretAccountID)) + "/autorag/rags/" + url.PathEscape(rag) + "/search"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, searchURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("workersai: create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+creds.Get(SecretToken))

	res, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("workersai: search request failed: %w", err)
	}
	return res, nil
}

func (p *Provider) doJSONRequest(req *http.Request, rawURL string) ([]byte, error) {
	res, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &provider.StatusError{
			StatusCode: res.StatusCode,
			URL:        rawURL,
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return buf, nil
}
