package anthropic

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"llm-gateway/internal/domain"
	"llm-gateway/internal/provider"
)

const (
	Name         = "anthropic"
	DefaultModel = "claude-3-5-haiku-latest"
	SecretAPIKey = "ANTHROPIC_API_KEY"

	maxTokens = 4096
)

type Provider struct {
	baseURL    string
	httpClient *http.Client
	client     provider.Lazy[*anthropic.Client]
}

type Option func(*Provider)

func WithBaseURL(baseURL string) Option {
	return func(p *Provider) {
		p.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = httpClient
	}
}

func NewProvider(opts ...Option) *Provider {
	p := &Provider{httpClient: &http.Client{}}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Name() string              { return Name }
func (p *Provider) DefaultModel() string      { return DefaultModel }
func (p *Provider) RequiredSecrets() []string { return []string{SecretAPIKey} }

func (p *Provider) KeepModel(m provider.ModelInfo) bool {
	return strings.HasPrefix(m.ID, "claude-")
}

func (p *Provider) Build(model string, creds provider.Credentials) (provider.CallableModel, error) {
	if err := creds.Require(Name, SecretAPIKey); err != nil {
		return nil, err
	}
	client := p.client.Get(func() *anthropic.Client {
		opts := []option.RequestOption{
			option.WithAPIKey(creds.Get(SecretAPIKey)),
			option.WithMaxRetries(0),
		}
		if p.baseURL != "" {
			opts = append(opts, option.WithBaseURL(p.baseURL))
		}
		if p.httpClient != nil {
			opts = append(opts, option.WithHTTPClient(p.httpClient))
		}
		c := anthropic.NewClient(opts...)
		return &c
	})
	return &chatModel{client: client, model: model}, nil
}

type chatModel struct {
	client *anthropic.Client
	model  string
}

func (m *chatModel) Stream(ctx context.Context, messages []domain.Message) (<-chan provider.Chunk, error) {
	if m.model == "" {
		return nil, errors.New("anthropic: model must not be empty")
	}
	system, history := splitSystem(messages)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(m.model),
		MaxTokens: maxTokens,
		Messages:  history,
	}
	if len(system) > 0 {
		params.System = system
	}

	stream := m.client.Messages.NewStreaming(ctx, params)
	next := func() (string, error) {
		for stream.Next() {
			evt, ok := stream.Current().AsAny().(anthropic.ContentBlockDeltaEvent)
			if !ok {
				continue
			}
			if d, ok := evt.Delta.AsAny().(anthropic.TextDelta); ok {
				return d.Text, nil
			}
		}
		if err := stream.Err(); err != nil {
			return "", fmt.Errorf("anthropic: read stream: %w", convertError(err))
		}
		return "", io.EOF
	}
	return provider.Relay(ctx, next, func() { _ = stream.Close() })
}

func (m *chatModel) ListModels(ctx context.Context) ([]provider.ModelInfo, error) {
	page, err := m.client.Models.List(ctx, anthropic.ModelListParams{})
	if err != nil {
		return nil, fmt.Errorf("anthropic: list models: %w", convertError(err))
	}
	out := make([]provider.ModelInfo, 0, len(page.Data))
	for _, model := range page.Data {
		out = append(out, provider.ModelInfo{ID: model.ID})
	}
	return out, nil
}

// splitSystem lifts system messages into the top-level system blocks; the
// Messages API rejects them inside the conversation.
func splitSystem(messages []domain.Message) ([]anthropic.TextBlockParam, []anthropic.MessageParam) {
	var system []anthropic.TextBlockParam
	history := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case domain.RoleSystem:
			system = append(system, anthropic.TextBlockParam{Text: msg.Content})
		case domain.RoleAssistant:
			history = append(history, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			history = append(history, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	return system, history
}

func convertError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode != 0 {
		rawURL := ""
		if apiErr.Request != nil && apiErr.Request.URL != nil {
			rawURL = apiErr.Request.URL.String()
		}
		return &provider.StatusError{StatusCode: apiErr.StatusCode, URL: rawURL, Body: apiErr.RawJSON()}
	}
	return err
}
