package ollama

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"llm-gateway/internal/domain"
	"llm-gateway/internal/provider"
)

const (
	Name         = "ollama"
	DefaultModel = "llama3.1"

	defaultHost = "http://localhost:11434"
)

// Provider talks to a local or self-hosted Ollama server. It needs no
// secrets; OLLAMA_HOST picks the server.
type Provider struct {
	host       string
	httpClient *http.Client
	client     provider.Lazy[*api.Client]
}

type Option func(*Provider)

func WithHost(host string) Option {
	return func(p *Provider) {
		if host = strings.TrimSpace(host); host != "" {
			p.host = host
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
		host:       defaultHost,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Name() string                      { return Name }
func (p *Provider) DefaultModel() string              { return DefaultModel }
func (p *Provider) RequiredSecrets() []string         { return nil }
func (p *Provider) KeepModel(provider.ModelInfo) bool { return true }

func (p *Provider) Build(model string, _ provider.Credentials) (provider.CallableModel, error) {
	base, err := parseHost(p.host)
	if err != nil {
		return nil, fmt.Errorf("ollama: invalid host %q: %w", p.host, err)
	}
	client := p.client.Get(func() *api.Client {
		return api.NewClient(base, p.httpClient)
	})
	return &chatModel{client: client, model: model}, nil
}

func parseHost(host string) (*url.URL, error) {
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "http://" + host
	}
	return url.Parse(host)
}

type chatModel struct {
	client *api.Client
	model  string
}

// Stream bridges the callback-style Chat API onto a pull function. The
// callback blocks until the relay asks for the next fragment, so upstream
// reads follow consumer demand.
func (m *chatModel) Stream(ctx context.Context, messages []domain.Message) (<-chan provider.Chunk, error) {
	if m.model == "" {
		return nil, errors.New("ollama: model must not be empty")
	}
	stream := true
	req := &api.ChatRequest{
		Model:    m.model,
		Messages: toMessages(messages),
		Stream:   &stream,
	}

	chatCtx, cancel := context.WithCancel(ctx)
	frags := make(chan string)
	errc := make(chan error, 1)
	go func() {
		defer close(frags)
		errc <- m.client.Chat(chatCtx, req, func(resp api.ChatResponse) error {
			if resp.Message.Content == "" {
				return nil
			}
			select {
			case frags <- resp.Message.Content:
				return nil
			case <-chatCtx.Done():
				return chatCtx.Err()
			}
		})
	}()

	next := func() (string, error) {
		frag, ok := <-frags
		if ok {
			return frag, nil
		}
		if err := <-errc; err != nil {
			return "", fmt.Errorf("ollama: chat: %w", convertError(err))
		}
		return "", io.EOF
	}
	return provider.Relay(ctx, next, cancel)
}

func (m *chatModel) ListModels(ctx context.Context) ([]provider.ModelInfo, error) {
	list, err := m.client.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("ollama: list models: %w", convertError(err))
	}
	out := make([]provider.ModelInfo, 0, len(list.Models))
	for _, model := range list.Models {
		out = append(out, provider.ModelInfo{ID: model.Name})
	}
	return out, nil
}

func toMessages(messages []domain.Message) []api.Message {
	out := make([]api.Message, 0, len(messages))
	for _, msg := range messages {
		out = append(out, api.Message{Role: msg.Role, Content: msg.Content})
	}
	return out
}

func convertError(err error) error {
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		return &provider.StatusError{StatusCode: statusErr.StatusCode, URL: "api", Body: statusErr.ErrorMessage}
	}
	var statusPtr *api.StatusError
	if errors.As(err, &statusPtr) && statusPtr != nil {
		return &provider.StatusError{StatusCode: statusPtr.StatusCode, URL: "api", Body: statusPtr.ErrorMessage}
	}
	return err
}
