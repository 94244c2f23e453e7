package inference

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Stream is a pull-based sequence of text fragments. Next returns io.EOF
// once the upstream finished cleanly. Close releases the upstream
// connection and may be called at any point, more than once.
type Stream interface {
	Next() (string, error)
	Close() error
}

// Source starts a generation for a conversation. Cancelling ctx aborts the
// upstream call, including a stream that is already being read.
type Source interface {
	Stream(ctx context.Context, conv []Message, cfg GenerationConfig) (Stream, error)
}

var ErrProvider = errors.New("inference: provider error")

// ProviderError describes a rejected or failed upstream call.
type ProviderError struct {
	Provider string
	Status   int
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s: status %d: %s", e.Provider, e.Status, msg)
	}
	return fmt.Sprintf("%s: %s", e.Provider, msg)
}

func (e *ProviderError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrProvider}
	}
	return []error{ErrProvider, e.Err}
}

// SliceStream replays fixed fragments. Providers use it for non-streaming
// responses.
type SliceStream struct {
	fragments []string
	pos       int
}

func NewSliceStream(fragments ...string) *SliceStream {
	return &SliceStream{fragments: fragments}
}

func (s *SliceStream) Next() (string, error) {
	for s.pos < len(s.fragments) {
		frag := s.fragments[s.pos]
		s.pos++
		if frag != "" {
			return frag, nil
		}
	}
	return "", io.EOF
}

func (s *SliceStream) Close() error {
	s.pos = len(s.fragments)
	return nil
}
