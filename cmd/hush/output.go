package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

type OutputMode string

const (
	OutputInstant OutputMode = "instant"
	OutputQuiet   OutputMode = "quiet"
)

func parseOutputMode(s string) (OutputMode, error) {
	switch m := OutputMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "", OutputInstant:
		return OutputInstant, nil
	case OutputQuiet:
		return m, nil
	default:
		return "", fmt.Errorf("unknown output mode %q (want %s or %s)", s, OutputInstant, OutputQuiet)
	}
}

// AnswerWriter prints filtered answer text. Instant mode writes every
// fragment as it arrives; quiet mode holds the answer until Finish.
type AnswerWriter struct {
	mode   OutputMode
	raw    bool
	buffer *bufio.Writer

	accumulator strings.Builder
}

func NewAnswerWriter(w io.Writer, mode OutputMode, raw bool) *AnswerWriter {
	return &AnswerWriter{
		mode:   mode,
		raw:    raw,
		buffer: bufio.NewWriterSize(w, 4096),
	}
}

// Write has the pipeline sink signature.
func (w *AnswerWriter) Write(text string) error {
	w.accumulator.WriteString(text)
	if w.mode == OutputQuiet {
		return nil
	}
	if err := w.writeOut(text); err != nil {
		return err
	}
	return w.buffer.Flush()
}

// Finish writes anything still held and ends the answer with a newline.
func (w *AnswerWriter) Finish() error {
	text := w.accumulator.String()
	if w.mode == OutputQuiet {
		if err := w.writeOut(text); err != nil {
			return err
		}
	}
	if text != "" && (w.raw || !strings.HasSuffix(text, "\n")) {
		if err := w.buffer.WriteByte('\n'); err != nil {
			return err
		}
	}
	return w.buffer.Flush()
}

func (w *AnswerWriter) Text() string {
	return w.accumulator.String()
}

func (w *AnswerWriter) writeOut(text string) error {
	if w.raw {
		text = escapeRaw(text)
	}
	_, err := w.buffer.WriteString(text)
	return err
}

// escapeRaw renders control characters as escapes so the answer stays on one
// line.
func escapeRaw(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '\\':
			b.WriteString(`\\`)
		default:
			if strconv.IsPrint(r) {
				b.WriteRune(r)
			} else {
				fmt.Fprintf(&b, `\u%04x`, r)
			}
		}
	}
	return b.String()
}
