package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"llm-gateway/internal/domain"
)

type SessionService struct {
	store SessionStore
}

func NewSessionService(store SessionStore) (*SessionService, error) {
	if store == nil {
		return nil, errors.New("usecase: session store must not be nil")
	}
	return &SessionService{store: store}, nil
}

// Get returns the stored session, or an empty one for an unused id.
func (s *SessionService) Get(ctx context.Context, id string) (domain.Session, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Session{}, newError(ErrorInvalidRequestBody, "session id is required", nil)
	}
	session, err := s.store.GetSession(ctx, id)
	if err != nil {
		return domain.Session{}, newError(ErrorInternal, "session read failed", err)
	}
	if session.Empty() {
		session.Messages = []domain.Message{}
	}
	return session, nil
}

// Put replaces the messages stored under id.
func (s *SessionService) Put(ctx context.Context, id string, messages []domain.Message) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return newError(ErrorInvalidRequestBody, "session id is required", nil)
	}
	for _, m := range messages {
		if !domain.ValidRole(m.Role) {
			return newError(ErrorInvalidRequestBody, fmt.Sprintf("invalid message role %q", m.Role), nil)
		}
	}
	if err := s.store.PutSession(ctx, domain.Session{ID: id, Messages: messages}); err != nil {
		return newError(ErrorInternal, "session write failed", err)
	}
	return nil
}
