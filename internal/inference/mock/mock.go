// Package mock provides doubles for inference.Source and inference.Stream.
package mock

import (
	"context"

	"github.com/samcharles93/hush/internal/inference"
)

var (
	_ inference.Source = (*Source)(nil)
	_ inference.Stream = (*Stream)(nil)
)

// Source delegates to StreamFn.
type Source struct {
	StreamFn func(ctx context.Context, conv []inference.Message, cfg inference.GenerationConfig) (inference.Stream, error)
}

func (s *Source) Stream(ctx context.Context, conv []inference.Message, cfg inference.GenerationConfig) (inference.Stream, error) {
	return s.StreamFn(ctx, conv, cfg)
}

// Stream delegates to NextFn. CloseFn is optional.
type Stream struct {
	NextFn  func() (string, error)
	CloseFn func() error
}

func (s *Stream) Next() (string, error) {
	return s.NextFn()
}

func (s *Stream) Close() error {
	if s.CloseFn == nil {
		return nil
	}
	return s.CloseFn()
}
