package domain

import "time"

// Session is the durable message history stored under an opaque id.
// A session that was never written has no messages and a zero UpdatedAt.
type Session struct {
	ID        string    `json:"sessionId"`
	Messages  []Message `json:"messages"`
	UpdatedAt time.Time `json:"updatedAt,omitzero"`
}

// NewSession returns an unwritten session; Messages is non-nil so it
// encodes as an empty array.
func NewSession(id string) Session {
	return Session{ID: id, Messages: []Message{}}
}

// Empty reports whether nothing has been stored for the session.
func (s Session) Empty() bool {
	return len(s.Messages) == 0
}
