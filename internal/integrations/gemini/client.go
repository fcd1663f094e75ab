// Package gemini talks to the Google Generative Language API directly over
// HTTP: streamGenerateContent with alt=sse for chat, and the models list for
// the catalog.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/samber/lo"

	"llm-gateway/internal/domain"
	"llm-gateway/internal/provider"
)

const (
	Name         = "gemini"
	DefaultModel = "gemini-1.5-pro-latest"
	SecretAPIKey = "GOOGLE_GENERATIVE_AI_API_KEY"

	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	modelPrefix    = "models/"
)

type Provider struct {
	baseURL         string
	httpClient      *http.Client
	searchGrounding bool
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

// WithSearchGrounding attaches the google_search tool to every chat call.
func WithSearchGrounding(enabled bool) Option {
	return func(p *Provider) {
		p.searchGrounding = enabled
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

func (p *Provider) Name() string              { return Name }
func (p *Provider) DefaultModel() string      { return DefaultModel }
func (p *Provider) RequiredSecrets() []string { return []string{SecretAPIKey} }

// KeepModel keeps models that support content generation.
func (p *Provider) KeepModel(m provider.ModelInfo) bool {
	return lo.Contains(m.Methods, "generateContent")
}

func (p *Provider) Build(model string, creds provider.Credentials) (provider.CallableModel, error) {
	if err := creds.Require(Name, SecretAPIKey); err != nil {
		return nil, err
	}
	return &chatModel{
		provider: p,
		apiKey:   creds.Get(SecretAPIKey),
		model:    strings.TrimPrefix(model, modelPrefix),
	}, nil
}

type chatModel struct {
	provider *Provider
	apiKey   string
	model    string
}

func (m *chatModel) Stream(ctx context.Context, messages []domain.Message) (<-chan provider.Chunk, error) {
	body, err := json.Marshal(m.provider.buildRequest(messages))
	if err != nil {
		return nil, fmt.Errorf("gemini: marshal request: %w", err)
	}
	streamURL := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse", m.provider.baseURL, url.PathEscape(m.model))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, streamURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("gemini: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("x-goog-api-key", m.apiKey)

	res, err := m.provider.do(req, streamURL)
	if err != nil {
		return nil, fmt.Errorf("gemini: stream request failed: %w", err)
	}

	scanner := newSSEScanner(res.Body)
	next := func() (string, error) {
		payload, err := scanner.Next()
		if err != nil {
			return "", err
		}
		var chunk generateContentResponse
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			return "", fmt.Errorf("gemini: decode stream chunk: %w", err)
		}
		return chunkText(chunk), nil
	}
	return provider.Relay(ctx, next, func() { _ = res.Body.Close() })
}

func (m *chatModel) ListModels(ctx context.Context) ([]provider.ModelInfo, error) {
	listURL := m.provider.baseURL + "/models?pageSize=1000"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, listURL, nil)
	if err != nil {
		return nil, fmt.Errorf("gemini: create list request: %w", err)
	}
	req.Header.Set("x-goog-api-key", m.apiKey)

	res, err := m.provider.do(req, listURL)
	if err != nil {
		return nil, fmt.Errorf("gemini: list models: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	var payload listModelsResponse
	if err := json.NewDecoder(io.LimitReader(res.Body, 4<<20)).Decode(&payload); err != nil {
		return nil, fmt.Errorf("gemini: decode models: %w", err)
	}
	return lo.Map(payload.Models, func(m modelEntry, _ int) provider.ModelInfo {
		return provider.ModelInfo{
			ID:      strings.TrimPrefix(m.Name, modelPrefix),
			Methods: m.SupportedGenerationMethods,
		}
	}), nil
}

// do sends req and converts non-2xx responses into *provider.StatusError.
// On success the caller owns the body.
func (p *Provider) do(req *http.Request, rawURL string) (*http.Response, error) {
	res, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		defer func() { _ = res.Body.Close() }()
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &provider.StatusError{
			StatusCode: res.StatusCode,
			URL:        rawURL,
			Body:       string(buf),
		}
	}
	return res, nil
}

func (p *Provider) buildRequest(messages []domain.Message) generateContentRequest {
	var req generateContentRequest
	for _, msg := range messages {
		switch msg.Role {
		case domain.RoleSystem:
			if req.SystemInstruction == nil {
				req.SystemInstruction = &systemInstruction{}
			}
			req.SystemInstruction.Parts = append(req.SystemInstruction.Parts, part{Text: msg.Content})
		case domain.RoleAssistant:
			req.Contents = append(req.Contents, content{Role: "model", Parts: []part{{Text: msg.Content}}})
		default:
			req.Contents = append(req.Contents, content{Role: "user", Parts: []part{{Text: msg.Content}}})
		}
	}
	if p.searchGrounding {
		req.Tools = []tool{{GoogleSearch: &struct{}{}}}
	}
	return req
}

// chunkText returns the visible text of one streamed chunk. Thought
// summaries are dropped.
func chunkText(chunk generateContentResponse) string {
	if len(chunk.Candidates) == 0 || chunk.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, p := range chunk.Candidates[0].Content.Parts {
		if !p.Thought {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}
