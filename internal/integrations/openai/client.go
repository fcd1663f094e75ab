package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"llm-gateway/internal/domain"
	"llm-gateway/internal/provider"
)

const (
	Name         = "openai"
	DefaultModel = "gpt-4o-mini"
	SecretAPIKey = "OPENAI_API_KEY"

	defaultBaseURL = "https://api.openai.com/v1"
)

// Provider is the OpenAI backend. It also owns the transcription pipe since
// both share the same key and base URL.
type Provider struct {
	baseURL    string
	httpClient *http.Client
	client     provider.Lazy[*goopenai.Client]
}

type Option func(*Provider)

func WithBaseURL(baseURL string) Option {
	return func(p *Provider) {
		if baseURL = strings.TrimSpace(baseURL); baseURL != "" {
			p.baseURL = baseURL
		}
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = httpClient
	}
}

// NewProvider creates the OpenAI provider. The SDK client is created on the
// first Build and reused for the lifetime of the process.
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

// KeepModel keeps only the GPT chat family.
func (p *Provider) KeepModel(m provider.ModelInfo) bool {
	return strings.HasPrefix(m.ID, "gpt-")
}

func (p *Provider) Build(model string, creds provider.Credentials) (provider.CallableModel, error) {
	if err := creds.Require(Name, SecretAPIKey); err != nil {
		return nil, err
	}
	client := p.client.Get(func() *goopenai.Client {
		return NewSDKClient(creds.Get(SecretAPIKey), apiURL(p.baseURL), p.httpClient)
	})
	return &ChatModel{client: client, model: model}, nil
}

// NewSDKClient builds a go-openai client for any OpenAI-compatible endpoint.
func NewSDKClient(apiKey, baseURL string, httpClient *http.Client) *goopenai.Client {
	cfg := goopenai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	return goopenai.NewClientWithConfig(cfg)
}

// ChatModel streams chat completions and lists models on one
// OpenAI-compatible endpoint.
type ChatModel struct {
	client *goopenai.Client
	model  string
}

// NewChatModel wraps an existing SDK client; other OpenAI-compatible
// providers reuse it for chat.
func NewChatModel(client *goopenai.Client, model string) *ChatModel {
	return &ChatModel{client: client, model: model}
}

func (m *ChatModel) Stream(ctx context.Context, messages []domain.Message) (<-chan provider.Chunk, error) {
	if m.model == "" {
		return nil, errors.New("openai: model must not be empty")
	}
	stream, err := m.client.CreateChatCompletionStream(ctx, goopenai.ChatCompletionRequest{
		Model:    m.model,
		Messages: toChatMessages(messages),
		Stream:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("openai: start stream: %w", ConvertError(err, "chat/completions"))
	}

	next := func() (string, error) {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		if err != nil {
			return "", fmt.Errorf("openai: read stream: %w", ConvertError(err, "chat/completions"))
		}
		if len(resp.Choices) == 0 {
			return "", nil
		}
		return resp.Choices[0].Delta.Content, nil
	}
	return provider.Relay(ctx, next, func() { _ = stream.Close() })
}

func (m *ChatModel) ListModels(ctx context.Context) ([]provider.ModelInfo, error) {
	list, err := m.client.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("openai: list models: %w", ConvertError(err, "models"))
	}
	out := make([]provider.ModelInfo, 0, len(list.Models))
	for _, model := range list.Models {
		out = append(out, provider.ModelInfo{ID: model.ID})
	}
	return out, nil
}

func toChatMessages(messages []domain.Message) []goopenai.ChatCompletionMessage {
	out := make([]goopenai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, goopenai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

// ConvertError maps go-openai error types onto *provider.StatusError so the
// router can mirror the upstream status. Other errors pass through.
func ConvertError(err error, path string) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return &provider.StatusError{StatusCode: apiErr.HTTPStatusCode, URL: path, Body: apiErr.Message}
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return &provider.StatusError{StatusCode: reqErr.HTTPStatusCode, URL: path, Body: reqErr.Error()}
	}
	return err
}

func apiURL(baseURL string) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		return defaultBaseURL
	}
	if strings.HasSuffix(base, "/v1") {
		return base
	}
	return base + "/v1"
}
