package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/glebarez/go-sqlite"

	"llm-gateway/internal/domain"
)

const sessionsTable = "sessions"

// SQLiteStore is the local-development session backend.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ SessionStore = (*SQLiteStore)(nil)

// OpenSQLite opens (creating if needed) the database at path. The pool is
// capped at one connection so writes serialize.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("repository: sqlite path must not be empty")
	}
	db, err := sql.Open("sqlite", "file:"+path+"?_busy_timeout=10000")
	if err != nil {
		return nil, fmt.Errorf("repository: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	store, err := NewSQLiteStore(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLiteStore wraps an open database and creates the sessions table.
func NewSQLiteStore(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("repository: db must not be nil")
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		messages TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);`); err != nil {
		return nil, fmt.Errorf("repository: create sessions table: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (domain.Session, error) {
	if strings.TrimSpace(id) == "" {
		return domain.Session{}, errors.New("repository: GetSession: id is required")
	}
	query, args, err := sq.Select("messages", "updated_at").
		From(sessionsTable).
		Where(sq.Eq{"session_id": id}).
		ToSql()
	if err != nil {
		return domain.Session{}, fmt.Errorf("repository: build query: %w", err)
	}

	var (
		raw       string
		updatedAt int64
	)
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&raw, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NewSession(id), nil
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("repository: GetSession: %w", err)
	}

	session := domain.NewSession(id)
	if err := json.Unmarshal([]byte(raw), &session.Messages); err != nil {
		return domain.Session{}, fmt.Errorf("repository: GetSession decode: %w", err)
	}
	if session.Messages == nil {
		session.Messages = []domain.Message{}
	}
	session.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return session, nil
}

func (s *SQLiteStore) PutSession(ctx context.Context, session domain.Session) error {
	if strings.TrimSpace(session.ID) == "" {
		return errors.New("repository: PutSession: id is required")
	}
	msgs := session.Messages
	if msgs == nil {
		msgs = []domain.Message{}
	}
	raw, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("repository: PutSession encode: %w", err)
	}

	query, args, err := sq.Insert(sessionsTable).
		Columns("session_id", "messages", "updated_at").
		Values(session.ID, string(raw), s.now().UTC().UnixNano()).
		Suffix("ON CONFLICT(session_id) DO UPDATE SET messages = excluded.messages, updated_at = excluded.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("repository: build query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("repository: PutSession: %w", err)
	}
	return nil
}
