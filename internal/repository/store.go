package repository

import (
	"context"

	"llm-gateway/internal/domain"
)

// SessionStore persists one message array per session id. Writes replace
// the whole array; the last completed write wins.
type SessionStore interface {
	GetSession(ctx context.Context, id string) (domain.Session, error)
	PutSession(ctx context.Context, session domain.Session) error
}
