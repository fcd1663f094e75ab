package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"llm-gateway/internal/domain"
	"llm-gateway/internal/provider"
)

// ProviderResolver is the part of provider.Registry the services use.
type ProviderResolver interface {
	Resolve(name string) (provider.Provider, error)
	Credentials(p provider.Provider) (provider.Credentials, error)
}

// SessionStore persists whole message arrays by session id.
type SessionStore interface {
	GetSession(ctx context.Context, id string) (domain.Session, error)
	PutSession(ctx context.Context, session domain.Session) error
}

type ChatService struct {
	providers ProviderResolver
	sessions  SessionStore
	log       zerolog.Logger

	pending sync.WaitGroup
}

func NewChatService(providers ProviderResolver, sessions SessionStore, log zerolog.Logger) (*ChatService, error) {
	if providers == nil {
		return nil, errors.New("usecase: provider resolver must not be nil")
	}
	if sessions == nil {
		return nil, errors.New("usecase: session store must not be nil")
	}
	return &ChatService{
		providers: providers,
		sessions:  sessions,
		log:       log.With().Str("component", "chat").Logger(),
	}, nil
}

// Stream is an open relay of upstream text fragments. Callers must Close it.
type Stream struct {
	model  string
	chunks <-chan provider.Chunk
	cancel context.CancelFunc
}

// Model is the model the request was sent to.
func (s *Stream) Model() string { return s.model }

// Chunks yields fragments in upstream order. A chunk with Err is last.
func (s *Stream) Chunks() <-chan provider.Chunk { return s.chunks }

// Close cancels the upstream request if it is still running.
func (s *Stream) Close() { s.cancel() }

// Chat routes req to its provider and returns the live token stream. No
// network call is made until the request has been validated and the
// provider's credentials are known to be present.
func (s *ChatService) Chat(ctx context.Context, req domain.ChatRequest) (*Stream, error) {
	if err := validateMessages(req.Messages); err != nil {
		return nil, err
	}
	p, err := s.providers.Resolve(req.Provider)
	if err != nil {
		return nil, resolveError(req.Provider, err)
	}
	creds, err := s.providers.Credentials(p)
	if err != nil {
		return nil, resolveError(p.Name(), err)
	}
	model := req.Model
	if strings.TrimSpace(model) == "" {
		model = p.DefaultModel()
	}
	m, err := p.Build(model, creds)
	if err != nil {
		return nil, resolveError(p.Name(), err)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	upstream, err := m.Stream(streamCtx, req.Messages)
	if err != nil {
		cancel()
		s.log.Warn().Err(err).Str("provider", p.Name()).Str("model", model).Msg("upstream handshake failed")
		return nil, upstreamError(fmt.Sprintf("%s request failed", p.Name()), err)
	}

	out := make(chan provider.Chunk)
	s.pending.Add(1)
	go s.forward(streamCtx, req, p.Name(), model, upstream, out)
	return &Stream{model: model, chunks: out, cancel: cancel}, nil
}

// forward copies upstream chunks to out while collecting the reply, then
// writes the session. The write happens after out is closed, so it never
// holds up the caller.
func (s *ChatService) forward(ctx context.Context, req domain.ChatRequest, providerName, model string, upstream <-chan provider.Chunk, out chan<- provider.Chunk) {
	defer s.pending.Done()

	reply, failed := s.drain(ctx, providerName, model, upstream, out)
	if strings.TrimSpace(req.SessionID) == "" {
		return
	}
	history := append([]domain.Message(nil), req.Messages...)
	if !failed {
		history = append(history, domain.Message{Role: domain.RoleAssistant, Content: reply})
	}
	s.persist(context.WithoutCancel(ctx), domain.Session{ID: req.SessionID, Messages: history})
}

// drain relays upstream to out and closes out. failed is set when the
// upstream broke or the caller went away before the end.
func (s *ChatService) drain(ctx context.Context, providerName, model string, upstream <-chan provider.Chunk, out chan<- provider.Chunk) (string, bool) {
	defer close(out)

	var (
		reply  strings.Builder
		failed bool
	)
	for c := range upstream {
		if c.Err != nil {
			failed = true
			s.log.Warn().Err(c.Err).Str("provider", providerName).Str("model", model).Msg("upstream stream failed")
		} else {
			reply.WriteString(c.Text)
		}
		select {
		case out <- c:
		case <-ctx.Done():
			failed = true
		}
		if failed {
			break
		}
	}
	if ctx.Err() != nil {
		failed = true
	}
	return reply.String(), failed
}

func (s *ChatService) persist(ctx context.Context, session domain.Session) {
	if err := s.sessions.PutSession(ctx, session); err != nil {
		s.log.Error().Err(err).Str("session_id", session.ID).Msg("session write failed")
		return
	}
	s.log.Debug().Str("session_id", session.ID).Int("messages", len(session.Messages)).Msg("session saved")
}

// Wait blocks until every open relay has finished and its session write,
// if any, is done.
func (s *ChatService) Wait() {
	s.pending.Wait()
}

func validateMessages(msgs []domain.Message) error {
	if len(msgs) == 0 {
		return newError(ErrorInvalidRequestBody, "messages must not be empty", nil)
	}
	for i, m := range msgs {
		if !domain.ValidRole(m.Role) {
			return newError(ErrorInvalidRequestBody, fmt.Sprintf("messages[%d]: invalid role %q", i, m.Role), nil)
		}
	}
	return nil
}
