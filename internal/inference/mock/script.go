package mock

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/samcharles93/hush/internal/inference"
	"github.com/samcharles93/hush/internal/reasoning"
)

var _ inference.Source = (*Script)(nil)

// Call records one Stream invocation on a Script.
type Call struct {
	Conversation []inference.Message
	Config       inference.GenerationConfig
}

// Script replays fixed fragments for every call.
//
// StartErr fails the call itself. EndErr is returned after the last
// fragment instead of io.EOF. With Hang set, the stream blocks after the
// last fragment until the call's context is cancelled.
type Script struct {
	Fragments []string
	StartErr  error
	EndErr    error
	Hang      bool

	mu     sync.Mutex
	calls  []Call
	closed int
}

func (s *Script) Stream(ctx context.Context, conv []inference.Message, cfg inference.GenerationConfig) (inference.Stream, error) {
	s.mu.Lock()
	s.calls = append(s.calls, Call{
		Conversation: append([]inference.Message(nil), conv...),
		Config:       cfg,
	})
	s.mu.Unlock()

	if s.StartErr != nil {
		return nil, s.StartErr
	}
	return &scriptStream{ctx: ctx, script: s}, nil
}

func (s *Script) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Closed reports how many streams were closed.
func (s *Script) Closed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type scriptStream struct {
	ctx    context.Context
	script *Script
	pos    int
	closed bool
}

func (st *scriptStream) Next() (string, error) {
	if st.closed {
		return "", io.ErrClosedPipe
	}
	if err := st.ctx.Err(); err != nil {
		return "", err
	}
	if st.pos < len(st.script.Fragments) {
		frag := st.script.Fragments[st.pos]
		st.pos++
		return frag, nil
	}
	if st.script.Hang {
		<-st.ctx.Done()
		return "", st.ctx.Err()
	}
	if st.script.EndErr != nil {
		return "", st.script.EndErr
	}
	return "", io.EOF
}

func (st *scriptStream) Close() error {
	if st.closed {
		return nil
	}
	st.closed = true
	st.script.mu.Lock()
	st.script.closed++
	st.script.mu.Unlock()
	return nil
}

var _ inference.Source = Echo{}

// Echo answers with a short reasoning block followed by the last user
// message, cut into small fragments. It lets the server run without
// provider credentials. Open and Close wrap the reasoning block and default
// to the standard markers.
type Echo struct {
	ChunkSize int
	Open      string
	Close     string
}

func (e Echo) Stream(ctx context.Context, conv []inference.Message, cfg inference.GenerationConfig) (inference.Stream, error) {
	var last string
	for i := len(conv) - 1; i >= 0; i-- {
		if conv[i].Role == inference.RoleUser {
			last = conv[i].Content
			break
		}
	}
	open, closing := e.Open, e.Close
	if open == "" {
		open = reasoning.DefaultOpen
	}
	if closing == "" {
		closing = reasoning.DefaultClose
	}
	reply := open + "The user said " + last + ". Repeat it." + closing + "\n\nYou said: " + last
	size := e.ChunkSize
	if size <= 0 {
		size = 3
	}
	script := &Script{Fragments: chunk(reply, size)}
	return script.Stream(ctx, conv, cfg)
}

func chunk(s string, size int) []string {
	var out []string
	var b strings.Builder
	n := 0
	for _, r := range s {
		b.WriteRune(r)
		n++
		if n == size {
			out = append(out, b.String())
			b.Reset()
			n = 0
		}
	}
	if b.Len() > 0 {
		out = append(out, b.String())
	}
	return out
}
