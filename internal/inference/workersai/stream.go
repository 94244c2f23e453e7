package workersai

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	json "github.com/goccy/go-json"
)

const (
	scannerInitialBuffer = 64 * 1024
	scannerMaxBuffer     = 512 * 1024
)

// event covers both payload shapes Workers AI streams: the native
// {"response": "..."} and the OpenAI-style chunk some models emit.
type event struct {
	Response string `json:"response"`
	Choices  []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

func (e event) text() string {
	if e.Response != "" {
		return e.Response
	}
	var b strings.Builder
	for _, c := range e.Choices {
		b.WriteString(c.Delta.Content)
	}
	return b.String()
}

// eventStream decodes a server-sent event body into text fragments.
type eventStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	done    bool
	closed  bool
}

func newEventStream(body io.ReadCloser) *eventStream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, scannerInitialBuffer), scannerMaxBuffer)
	return &eventStream{body: body, scanner: scanner}
}

func (s *eventStream) Next() (string, error) {
	for {
		if s.done || s.closed {
			return "", io.EOF
		}
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return "", fmt.Errorf("workersai: read stream: %w", err)
			}
			s.done = true
			return "", io.EOF
		}

		data, ok := strings.CutPrefix(s.scanner.Text(), "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			s.done = true
			return "", io.EOF
		}

		var ev event
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return "", fmt.Errorf("workersai: decode event: %w", err)
		}
		if text := ev.text(); text != "" {
			return text, nil
		}
	}
}

func (s *eventStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.body.Close()
}
