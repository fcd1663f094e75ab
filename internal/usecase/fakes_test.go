package usecase

import (
	"context"
	"io"
	"sync"

	"llm-gateway/internal/domain"
	"llm-gateway/internal/provider"
)

// fakeProvider records every Build and upstream call it sees.
type fakeProvider struct {
	name     string
	def      string
	secrets  []string
	keep     func(provider.ModelInfo) bool
	chunks   []string
	midErr   error
	startErr error
	models   []provider.ModelInfo
	listErr  error

	mu         sync.Mutex
	builtModel string
	streamed   [][]domain.Message
	listCalls  int
}

func (p *fakeProvider) Name() string              { return p.name }
func (p *fakeProvider) DefaultModel() string      { return p.def }
func (p *fakeProvider) RequiredSecrets() []string { return p.secrets }

func (p *fakeProvider) KeepModel(m provider.ModelInfo) bool {
	if p.keep == nil {
		return true
	}
	return p.keep(m)
}

func (p *fakeProvider) Build(model string, _ provider.Credentials) (provider.CallableModel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.builtModel = model
	return &fakeModel{p: p}, nil
}

func (p *fakeProvider) upstreamCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.streamed) + p.listCalls
}

type fakeModel struct {
	p *fakeProvider
}

func (m *fakeModel) Stream(ctx context.Context, messages []domain.Message) (<-chan provider.Chunk, error) {
	m.p.mu.Lock()
	m.p.streamed = append(m.p.streamed, messages)
	m.p.mu.Unlock()

	if m.p.startErr != nil {
		return nil, m.p.startErr
	}
	i := 0
	next := func() (string, error) {
		if i < len(m.p.chunks) {
			i++
			return m.p.chunks[i-1], nil
		}
		if m.p.midErr != nil {
			return "", m.p.midErr
		}
		return "", io.EOF
	}
	return provider.Relay(ctx, next, nil)
}

func (m *fakeModel) ListModels(context.Context) ([]provider.ModelInfo, error) {
	m.p.mu.Lock()
	m.p.listCalls++
	m.p.mu.Unlock()
	return m.p.models, m.p.listErr
}

// memStore is an in-memory SessionStore.
type memStore struct {
	mu       sync.Mutex
	sessions map[string]domain.Session
	putErr   error
	getErr   error
	puts     int
}

func newMemStore() *memStore {
	return &memStore{sessions: map[string]domain.Session{}}
}

func (s *memStore) GetSession(_ context.Context, id string) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return domain.Session{}, s.getErr
	}
	if sess, ok := s.sessions[id]; ok {
		return sess, nil
	}
	return domain.NewSession(id), nil
}

func (s *memStore) PutSession(_ context.Context, session domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts++
	if s.putErr != nil {
		return s.putErr
	}
	s.sessions[session.ID] = session
	return nil
}

func (s *memStore) get(id string) (domain.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

func (s *memStore) putCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts
}
