package api

import (
	"fmt"
	"io"
	"net/http"

	json "github.com/goccy/go-json"
	"github.com/labstack/echo/v5"
)

const doneEvent = "data: [DONE]\n\n"

type chunkEvent struct {
	Response string `json:"response"`
}

// EventWriter writes filtered text as server-sent events, one event per
// fragment, flushing after each so the client renders text as it arrives.
type EventWriter struct {
	w       io.Writer
	flusher func()
	events  int
}

// NewEventWriter commits the streaming headers and the 200 status.
func NewEventWriter(c *echo.Context) (*EventWriter, error) {
	res := c.Response()
	flusher, ok := res.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming unsupported")
	}

	res.Header().Set(echo.HeaderContentType, "text/event-stream; charset=utf-8")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &EventWriter{
		w:       res,
		flusher: flusher.Flush,
	}, nil
}

// Send writes one `data: {"response": text}` event.
func (s *EventWriter) Send(text string) error {
	b, err := json.Marshal(chunkEvent{Response: text})
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", b); err != nil {
		return err
	}
	s.flusher()
	s.events++
	return nil
}

// Done writes the end-of-stream marker.
func (s *EventWriter) Done() error {
	if _, err := io.WriteString(s.w, doneEvent); err != nil {
		return err
	}
	s.flusher()
	return nil
}

func (s *EventWriter) Events() int {
	return s.events
}
