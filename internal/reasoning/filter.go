// Package reasoning removes delimited reasoning blocks (DeepSeek-style
// <think>...</think>) from model output that arrives in arbitrary fragments.
package reasoning

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	DefaultOpen  = "<think>"
	DefaultClose = "</think>"
)

// maxHeldSpace caps the whitespace run held back while trimming. Longer runs
// are released from the front, so only the last maxHeldSpace bytes of a
// trailing run are ever dropped.
const maxHeldSpace = 64

var (
	// ErrUnterminatedBlock is reported by Flush when the stream ended inside
	// a reasoning block. The block content has already been discarded.
	ErrUnterminatedBlock = errors.New("reasoning: unterminated block at end of stream")

	ErrInvalidDelimiters = errors.New("reasoning: invalid delimiters")
)

// Options configures a Filter. Empty delimiters fall back to the defaults.
type Options struct {
	Open  string
	Close string

	// TrimSpace drops leading whitespace of the whole output and any trailing
	// whitespace still pending when the stream ends. Interior whitespace is
	// never touched.
	TrimSpace bool
}

func (o Options) withDefaults() Options {
	if o.Open == "" {
		o.Open = DefaultOpen
	}
	if o.Close == "" {
		o.Close = DefaultClose
	}
	return o
}

// Validate reports whether the delimiters can be matched unambiguously.
func (o Options) Validate() error {
	o = o.withDefaults()
	if !isASCII(o.Open) || !isASCII(o.Close) {
		return fmt.Errorf("%w: delimiters must be ASCII", ErrInvalidDelimiters)
	}
	if hasPrefixFold(o.Open, o.Close) || hasPrefixFold(o.Close, o.Open) {
		return fmt.Errorf("%w: %q and %q overlap", ErrInvalidDelimiters, o.Open, o.Close)
	}
	return nil
}

// Stats counts what a Filter removed.
type Stats struct {
	Blocks          int // open markers seen while passing
	StrayMarkers    int // close markers seen while passing
	SuppressedBytes int // block content discarded, markers excluded
}

// Filter is the per-stream sanitizer. It is not safe for concurrent use;
// create one per response and feed it fragments in delivery order.
//
// Between calls the filter holds at most len(longest delimiter)-1 bytes of
// carryover, plus up to three bytes of an incomplete UTF-8 sequence when fed
// through PushBytes.
type Filter struct {
	open  string
	close string
	trim  bool

	suppressing bool
	carry       string
	partial     []byte

	started      bool
	pendingSpace string

	stats Stats
}

func NewFilter(opts Options) (*Filter, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	return &Filter{
		open:  opts.Open,
		close: opts.Close,
		trim:  opts.TrimSpace,
	}, nil
}

// Suppressing reports whether the filter is inside a reasoning block.
func (f *Filter) Suppressing() bool {
	return f.suppressing
}

func (f *Filter) Stats() Stats {
	return f.stats
}

// Push consumes one text fragment and returns the text that is now known to
// be safe. It returns "" when nothing could be resolved yet.
func (f *Filter) Push(fragment string) string {
	if fragment == "" {
		return ""
	}
	buf := f.carry + fragment
	f.carry = ""

	var out strings.Builder
	i := 0
	for i < len(buf) {
		if f.suppressing {
			j := indexFold(buf[i:], f.close)
			if j < 0 {
				break
			}
			f.stats.SuppressedBytes += j
			i += j + len(f.close)
			f.suppressing = false
			continue
		}

		j, open := f.nextMarker(buf[i:])
		if j < 0 {
			break
		}
		out.WriteString(buf[i : i+j])
		if open {
			i += j + len(f.open)
			f.suppressing = true
			f.stats.Blocks++
		} else {
			i += j + len(f.close)
			f.stats.StrayMarkers++
		}
	}

	rest := buf[i:]
	held := f.heldSuffix(rest)
	resolved := rest[:len(rest)-held]
	if f.suppressing {
		f.stats.SuppressedBytes += len(resolved)
	} else {
		out.WriteString(resolved)
	}
	f.carry = rest[len(rest)-held:]

	return f.emit(out.String())
}

// PushBytes is Push for raw byte fragments. A multi-byte rune split across
// fragments is held until it is complete.
func (f *Filter) PushBytes(p []byte) string {
	if len(p) == 0 {
		return ""
	}
	buf := append(f.partial, p...)
	n := completeUTF8(buf)
	f.partial = append([]byte(nil), buf[n:]...)
	return f.Push(string(buf[:n]))
}

// Flush ends the stream. Carried text that can no longer complete a marker
// is released as plain text. If the stream ended inside a block the rest is
// dropped and ErrUnterminatedBlock is returned alongside the final text.
func (f *Filter) Flush() (string, error) {
	var out strings.Builder
	if len(f.partial) > 0 {
		out.WriteString(f.Push(string(f.partial)))
		f.partial = nil
	}

	tail := f.carry
	f.carry = ""
	if f.suppressing {
		f.stats.SuppressedBytes += len(tail)
		f.pendingSpace = ""
		return out.String(), ErrUnterminatedBlock
	}
	out.WriteString(f.emit(tail))
	f.pendingSpace = ""
	return out.String(), nil
}

// nextMarker returns the offset of the earliest open or close marker in s.
func (f *Filter) nextMarker(s string) (int, bool) {
	o := indexFold(s, f.open)
	c := indexFold(s, f.close)
	switch {
	case o < 0 && c < 0:
		return -1, false
	case c < 0 || (o >= 0 && o < c):
		return o, true
	default:
		return c, false
	}
}

// heldSuffix returns the length of the longest tail of s that is a strict
// prefix of a marker which could still complete in the current state.
func (f *Filter) heldSuffix(s string) int {
	limit := max(len(f.open), len(f.close)) - 1
	for k := min(len(s), limit); k > 0; k-- {
		tail := s[len(s)-k:]
		if hasPrefixFold(f.close, tail) {
			return k
		}
		if !f.suppressing && hasPrefixFold(f.open, tail) {
			return k
		}
	}
	return 0
}

func (f *Filter) emit(s string) string {
	if !f.trim || s == "" {
		return s
	}
	if !f.started {
		s = strings.TrimLeftFunc(s, unicode.IsSpace)
		if s == "" {
			return ""
		}
		f.started = true
	}
	body := strings.TrimRightFunc(s, unicode.IsSpace)
	if body == "" {
		return f.holdSpace(f.pendingSpace + s)
	}
	out := f.pendingSpace + body
	return out + f.holdSpace(s[len(body):])
}

// holdSpace keeps at most maxHeldSpace bytes of space pending and returns the
// part that has to go out now. The cut never splits a rune.
func (f *Filter) holdSpace(space string) string {
	if len(space) <= maxHeldSpace {
		f.pendingSpace = space
		return ""
	}
	cut := len(space) - maxHeldSpace
	for cut < len(space) && !utf8.RuneStart(space[cut]) {
		cut++
	}
	f.pendingSpace = space[cut:]
	return space[:cut]
}

// Strip removes every block and stray marker from a complete text.
func Strip(text string, opts Options) (string, error) {
	f, err := NewFilter(opts)
	if err != nil {
		return "", err
	}
	head := f.Push(text)
	tail, _ := f.Flush()
	return head + tail, nil
}
