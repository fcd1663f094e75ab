package provider

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func iterate(fragments []string, tailErr error) NextFunc {
	i := 0
	return func() (string, error) {
		if i < len(fragments) {
			i++
			return fragments[i-1], nil
		}
		if tailErr != nil {
			return "", tailErr
		}
		return "", io.EOF
	}
}

func drain(ch <-chan Chunk) ([]string, error) {
	var texts []string
	for c := range ch {
		if c.Err != nil {
			return texts, c.Err
		}
		texts = append(texts, c.Text)
	}
	return texts, nil
}

func TestRelay_ForwardsChunksInOrder(t *testing.T) {
	var released atomic.Int32
	ch, err := Relay(context.Background(), iterate([]string{"Hel", "lo"}, nil), func() { released.Add(1) })
	require.NoError(t, err)

	texts, err := drain(ch)
	require.NoError(t, err)
	require.Equal(t, []string{"Hel", "lo"}, texts)
	require.Equal(t, int32(1), released.Load())
}

func TestRelay_SkipsEmptyFragments(t *testing.T) {
	ch, err := Relay(context.Background(), iterate([]string{"", "a", "", "b"}, nil), nil)
	require.NoError(t, err)
	texts, err := drain(ch)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, texts)
}

func TestRelay_HandshakeFailureIsReturned(t *testing.T) {
	var released atomic.Int32
	upstream := &StatusError{StatusCode: 401, URL: "http://x", Body: "nope"}
	ch, err := Relay(context.Background(), iterate(nil, upstream), func() { released.Add(1) })
	require.Nil(t, ch)
	require.ErrorIs(t, err, upstream)
	require.Equal(t, int32(1), released.Load())
}

func TestRelay_EmptyUpstreamClosesChannel(t *testing.T) {
	ch, err := Relay(context.Background(), iterate(nil, nil), nil)
	require.NoError(t, err)
	texts, err := drain(ch)
	require.NoError(t, err)
	require.Empty(t, texts)
}

func TestRelay_MidStreamFailureIsLastChunk(t *testing.T) {
	boom := errors.New("connection reset")
	ch, err := Relay(context.Background(), iterate([]string{"par"}, boom), nil)
	require.NoError(t, err)
	texts, err := drain(ch)
	require.ErrorIs(t, err, boom)
	require.Equal(t, []string{"par"}, texts)
}

func TestRelay_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	released := make(chan struct{})
	endless := func() (string, error) { return "x", nil }

	ch, err := Relay(ctx, endless, func() { close(released) })
	require.NoError(t, err)
	<-ch
	cancel()

	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("producer did not stop after cancel")
	}
}
