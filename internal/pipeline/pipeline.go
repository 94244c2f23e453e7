// Package pipeline pumps an inference stream through a reasoning filter into
// a sink, one fragment at a time.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/samcharles93/hush/internal/inference"
	"github.com/samcharles93/hush/internal/reasoning"
)

var (
	ErrUpstream = errors.New("pipeline: upstream failed")
	ErrSink     = errors.New("pipeline: sink failed")
)

// Sink receives filtered text. It is never called with an empty string.
type Sink func(text string) error

type Result struct {
	Fragments    int // received from upstream
	Emitted      int // handed to the sink
	Bytes        int
	Stats        reasoning.Stats
	Unterminated bool
}

// Run reads src until it ends, pushing every fragment through f and handing
// resolved text to sink. The stream is always closed before Run returns.
//
// An unterminated reasoning block is not an error; it is reported through
// Result.Unterminated. Upstream and sink failures stop the pump immediately
// and the filter is not flushed, so nothing held back is released.
func Run(ctx context.Context, src inference.Stream, f *reasoning.Filter, sink Sink) (res Result, err error) {
	defer func() {
		_ = src.Close()
		res.Stats = f.Stats()
	}()

	emit := func(text string) error {
		if text == "" {
			return nil
		}
		res.Emitted++
		res.Bytes += len(text)
		if err := sink(text); err != nil {
			return fmt.Errorf("%w: %w", ErrSink, err)
		}
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		frag, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return res, ctxErr
			}
			return res, fmt.Errorf("%w: %w", ErrUpstream, err)
		}
		res.Fragments++
		if err := emit(f.Push(frag)); err != nil {
			return res, err
		}
	}

	tail, ferr := f.Flush()
	if errors.Is(ferr, reasoning.ErrUnterminatedBlock) {
		res.Unterminated = true
	}
	if err := emit(tail); err != nil {
		return res, err
	}
	return res, nil
}
