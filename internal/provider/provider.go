// Package provider defines the capability interface every LLM backend
// implements and the registry the chat router looks providers up in.
package provider

import (
	"context"

	"llm-gateway/internal/domain"
)

// Chunk is one fragment of a relayed token stream. A chunk with a non-nil
// Err is always the last one sent.
type Chunk struct {
	Text string
	Err  error
}

// ModelInfo is the normalized view of one upstream catalog entry. Methods
// carries provider capability tags (e.g. Gemini generation methods) that
// KeepModel predicates may inspect; it never leaves the catalog boundary.
type ModelInfo struct {
	ID      string
	Methods []string
}

// CallableModel is a specific model at a specific provider, ready to accept
// a message sequence.
type CallableModel interface {
	// Stream sends the whole message sequence upstream. An error is returned
	// only when the upstream fails before producing any output; later
	// failures arrive as the final Chunk. The channel is closed when the
	// upstream finishes or ctx is cancelled.
	Stream(ctx context.Context, messages []domain.Message) (<-chan Chunk, error)

	// ListModels performs one catalog read against the provider.
	ListModels(ctx context.Context) ([]ModelInfo, error)
}

// Provider is a registered LLM backend.
type Provider interface {
	Name() string
	DefaultModel() string
	// RequiredSecrets names the credentials that must be configured before
	// any call is made. Order is reporting order.
	RequiredSecrets() []string
	// Build is a pure constructor; it must not perform network calls.
	Build(model string, creds Credentials) (CallableModel, error)
	// KeepModel filters catalog entries down to chat-capable models.
	KeepModel(m ModelInfo) bool
}
