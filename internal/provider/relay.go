package provider

import (
	"context"
	"errors"
	"io"
)

// NextFunc yields the next text fragment from an upstream stream. It returns
// io.EOF when the upstream finished cleanly.
type NextFunc func() (string, error)

// Relay turns a pull-style upstream iterator into a channel of chunks.
//
// It pulls synchronously until the first non-empty fragment so a failure
// during the upstream handshake is returned as an error instead of a
// half-written stream. Everything after that is forwarded by a producer
// goroutine over an unbuffered channel; the producer stops as soon as ctx is
// done. release is called exactly once when the upstream is no longer read.
func Relay(ctx context.Context, next NextFunc, release func()) (<-chan Chunk, error) {
	if release == nil {
		release = func() {}
	}
	first, err := firstFragment(next)
	if err != nil && !errors.Is(err, io.EOF) {
		release()
		return nil, err
	}

	out := make(chan Chunk)
	go func() {
		defer close(out)
		defer release()
		if errors.Is(err, io.EOF) {
			return
		}
		if !send(ctx, out, Chunk{Text: first}) {
			return
		}
		for {
			text, err := next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				send(ctx, out, Chunk{Err: err})
				return
			}
			if text == "" {
				continue
			}
			if !send(ctx, out, Chunk{Text: text}) {
				return
			}
		}
	}()
	return out, nil
}

func firstFragment(next NextFunc) (string, error) {
	for {
		text, err := next()
		if err != nil {
			return "", err
		}
		if text != "" {
			return text, nil
		}
	}
}

func send(ctx context.Context, out chan<- Chunk, c Chunk) bool {
	select {
	case out <- c:
		return true
	case <-ctx.Done():
		return false
	}
}
