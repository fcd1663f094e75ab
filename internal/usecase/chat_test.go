package usecase

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"llm-gateway/internal/domain"
	"llm-gateway/internal/provider"
)

func newTestRegistry(creds provider.Credentials, ps ...provider.Provider) *provider.Registry {
	r := provider.NewRegistry(creds)
	for _, p := range ps {
		r.Register(p)
	}
	return r
}

func newTestChat(t *testing.T, store SessionStore, ps ...provider.Provider) *ChatService {
	t.Helper()
	svc, err := NewChatService(newTestRegistry(provider.Credentials{"FAKE_KEY": "k"}, ps...), store, zerolog.Nop())
	require.NoError(t, err)
	return svc
}

func collect(t *testing.T, s *Stream) ([]string, error) {
	t.Helper()
	defer s.Close()
	var (
		parts []string
		err   error
	)
	for c := range s.Chunks() {
		if c.Err != nil {
			err = c.Err
			continue
		}
		parts = append(parts, c.Text)
	}
	return parts, err
}

var userHi = []domain.Message{{Role: domain.RoleUser, Content: "hi"}}

func TestChat_RelaysChunksInOrder(t *testing.T) {
	fp := &fakeProvider{name: "fake", def: "fake-default", secrets: []string{"FAKE_KEY"}, chunks: []string{"Hel", "", "lo"}}
	svc := newTestChat(t, newMemStore(), fp)

	s, err := svc.Chat(context.Background(), domain.ChatRequest{Provider: "fake", Model: "m-1", Messages: userHi})
	require.NoError(t, err)
	require.Equal(t, "m-1", s.Model())

	parts, streamErr := collect(t, s)
	require.NoError(t, streamErr)
	require.Equal(t, []string{"Hel", "lo"}, parts)
	require.Equal(t, [][]domain.Message{userHi}, fp.streamed)
}

func TestChat_DefaultModelWhenEmpty(t *testing.T) {
	fp := &fakeProvider{name: "fake", def: "fake-default", chunks: []string{"x"}}
	svc := newTestChat(t, newMemStore(), fp)

	s, err := svc.Chat(context.Background(), domain.ChatRequest{Provider: "fake", Messages: userHi})
	require.NoError(t, err)
	_, _ = collect(t, s)
	require.Equal(t, "fake-default", s.Model())
	require.Equal(t, "fake-default", fp.builtModel)
}

func TestChat_UnknownProviderMakesNoCalls(t *testing.T) {
	fp := &fakeProvider{name: "fake", def: "d"}
	svc := newTestChat(t, newMemStore(), fp)

	_, err := svc.Chat(context.Background(), domain.ChatRequest{Provider: "nope", Messages: userHi})
	var ue *Error
	require.ErrorAs(t, err, &ue)
	require.Equal(t, ErrorUnknownProvider, ue.Code)
	require.Equal(t, http.StatusBadRequest, ue.HTTPStatus())
	require.Zero(t, fp.upstreamCalls())
}

func TestChat_MissingCredentialsMakesNoCalls(t *testing.T) {
	fp := &fakeProvider{name: "fake", def: "d", secrets: []string{"OTHER_KEY"}}
	svc := newTestChat(t, newMemStore(), fp)

	_, err := svc.Chat(context.Background(), domain.ChatRequest{Provider: "fake", Messages: userHi})
	var ue *Error
	require.ErrorAs(t, err, &ue)
	require.Equal(t, ErrorMisconfiguredProvider, ue.Code)
	require.Equal(t, http.StatusInternalServerError, ue.HTTPStatus())
	require.Contains(t, ue.Reason, "OTHER_KEY")
	require.Zero(t, fp.upstreamCalls())
}

func TestChat_InvalidBody(t *testing.T) {
	fp := &fakeProvider{name: "fake", def: "d"}
	svc := newTestChat(t, newMemStore(), fp)

	tests := []struct {
		name string
		msgs []domain.Message
	}{
		{"empty", nil},
		{"bad role", []domain.Message{{Role: "tool", Content: "x"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Chat(context.Background(), domain.ChatRequest{Provider: "fake", Messages: tt.msgs})
			var ue *Error
			require.ErrorAs(t, err, &ue)
			require.Equal(t, ErrorInvalidRequestBody, ue.Code)
		})
	}
	require.Zero(t, fp.upstreamCalls())
}

func TestChat_HandshakeFailureMirrorsStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"429 mirrored", &provider.StatusError{StatusCode: http.StatusTooManyRequests}, http.StatusTooManyRequests},
		{"503 mirrored", &provider.StatusError{StatusCode: http.StatusServiceUnavailable}, http.StatusServiceUnavailable},
		{"transport is 502", errors.New("dial tcp: refused"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fp := &fakeProvider{name: "fake", def: "d", startErr: tt.err}
			svc := newTestChat(t, newMemStore(), fp)
			_, err := svc.Chat(context.Background(), domain.ChatRequest{Provider: "fake", Messages: userHi})
			var ue *Error
			require.ErrorAs(t, err, &ue)
			require.Equal(t, ErrorUpstreamUnavailable, ue.Code)
			require.Equal(t, tt.status, ue.HTTPStatus())
		})
	}
}

func TestChat_PersistsReplyAfterCleanStream(t *testing.T) {
	store := newMemStore()
	fp := &fakeProvider{name: "fake", def: "d", chunks: []string{"Hel", "lo"}}
	svc := newTestChat(t, store, fp)

	s, err := svc.Chat(context.Background(), domain.ChatRequest{SessionID: "s1", Provider: "fake", Messages: userHi})
	require.NoError(t, err)
	_, _ = collect(t, s)

	require.Eventually(t, func() bool {
		_, ok := store.get("s1")
		return ok
	}, time.Second, 10*time.Millisecond)
	sess, _ := store.get("s1")
	require.Equal(t, []domain.Message{
		{Role: domain.RoleUser, Content: "hi"},
		{Role: domain.RoleAssistant, Content: "Hello"},
	}, sess.Messages)
}

func TestChat_MidStreamFailureSkipsReply(t *testing.T) {
	store := newMemStore()
	fp := &fakeProvider{name: "fake", def: "d", chunks: []string{"Hel"}, midErr: errors.New("reset")}
	svc := newTestChat(t, store, fp)

	s, err := svc.Chat(context.Background(), domain.ChatRequest{SessionID: "s2", Provider: "fake", Messages: userHi})
	require.NoError(t, err)
	parts, streamErr := collect(t, s)
	require.Equal(t, []string{"Hel"}, parts)
	require.ErrorContains(t, streamErr, "reset")

	svc.Wait()
	sess, ok := store.get("s2")
	require.True(t, ok)
	require.Equal(t, userHi, sess.Messages)
}

func TestChat_NoSessionIDNoWrite(t *testing.T) {
	store := newMemStore()
	fp := &fakeProvider{name: "fake", def: "d", chunks: []string{"ok"}}
	svc := newTestChat(t, store, fp)

	s, err := svc.Chat(context.Background(), domain.ChatRequest{Provider: "fake", Messages: userHi})
	require.NoError(t, err)
	_, _ = collect(t, s)
	svc.Wait()
	require.Zero(t, store.putCount())
}

func TestChat_PersistFailureIsNotSurfaced(t *testing.T) {
	store := newMemStore()
	store.putErr = errors.New("table missing")
	fp := &fakeProvider{name: "fake", def: "d", chunks: []string{"ok"}}
	svc := newTestChat(t, store, fp)

	s, err := svc.Chat(context.Background(), domain.ChatRequest{SessionID: "s3", Provider: "fake", Messages: userHi})
	require.NoError(t, err)
	parts, streamErr := collect(t, s)
	require.NoError(t, streamErr)
	require.Equal(t, []string{"ok"}, parts)
	svc.Wait()
	require.Equal(t, 1, store.putCount())
}

func TestChat_CloseStopsRelay(t *testing.T) {
	fp := &fakeProvider{name: "fake", def: "d", chunks: []string{"a", "b", "c", "d"}}
	svc := newTestChat(t, newMemStore(), fp)

	s, err := svc.Chat(context.Background(), domain.ChatRequest{Provider: "fake", Messages: userHi})
	require.NoError(t, err)
	first := <-s.Chunks()
	require.Equal(t, "a", first.Text)
	s.Close()

	for range s.Chunks() {
	}
}

func TestChat_WaitCoversWriteAfterEarlyClose(t *testing.T) {
	for i := 0; i < 50; i++ {
		store := newMemStore()
		fp := &fakeProvider{name: "fake", def: "d", chunks: []string{"Hel", "lo"}}
		svc := newTestChat(t, store, fp)

		s, err := svc.Chat(context.Background(), domain.ChatRequest{SessionID: "s4", Provider: "fake", Messages: userHi})
		require.NoError(t, err)
		first := <-s.Chunks()
		require.Equal(t, "Hel", first.Text)
		s.Close()

		svc.Wait()
		require.Equal(t, 1, store.putCount())
		sess, ok := store.get("s4")
		require.True(t, ok)
		require.Equal(t, userHi, sess.Messages)
	}
}

func TestNewChatService_Validation(t *testing.T) {
	_, err := NewChatService(nil, newMemStore(), zerolog.Nop())
	require.ErrorContains(t, err, "must not be nil")
	_, err = NewChatService(provider.NewRegistry(nil), nil, zerolog.Nop())
	require.ErrorContains(t, err, "must not be nil")
}
