// Package openaicompat streams chat completions from any OpenAI-compatible
// endpoint (OpenAI, DeepSeek, vLLM, llama.cpp server, ...).
package openaicompat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/samcharles93/hush/internal/inference"
	"github.com/samcharles93/hush/internal/logger"
)

const (
	DefaultModel = "deepseek-reasoner"
	providerName = "openai"
)

var _ inference.Source = (*Client)(nil)

type Config struct {
	APIKey     string
	BaseURL    string // optional; for DeepSeek or self-hosted servers
	Model      string
	HTTPClient *http.Client
}

type Client struct {
	client *openai.Client
	model  string
}

func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: missing API key")
	}
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.HTTPClient != nil {
		config.HTTPClient = cfg.HTTPClient
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &Client{client: openai.NewClientWithConfig(config), model: model}, nil
}

func (c *Client) Stream(ctx context.Context, conv []inference.Message, cfg inference.GenerationConfig) (inference.Stream, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(conv))
	for _, m := range conv {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content})
	}
	req := openai.ChatCompletionRequest{
		Model:     c.model,
		Messages:  msgs,
		MaxTokens: cfg.MaxOutputTokens,
		Stream:    true,
	}
	log := logger.FromContext(ctx)
	log.Debug("openai request", "model", c.model, "messages", len(msgs))
	s, err := c.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		log.Debug("openai rejected", "error", err)
		return nil, providerError(err)
	}
	return &stream{s: s}, nil
}

func providerError(err error) error {
	perr := &inference.ProviderError{Provider: providerName, Err: err}
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		perr.Status = apiErr.HTTPStatusCode
		perr.Message = apiErr.Message
	case errors.As(err, &reqErr):
		perr.Status = reqErr.HTTPStatusCode
	}
	return perr
}

type stream struct {
	s      *openai.ChatCompletionStream
	done   bool
	closed bool
}

func (st *stream) Next() (string, error) {
	for {
		if st.done || st.closed {
			return "", io.EOF
		}
		resp, err := st.s.Recv()
		if errors.Is(err, io.EOF) {
			st.done = true
			return "", io.EOF
		}
		if err != nil {
			return "", fmt.Errorf("openai: %w", providerError(err))
		}
		var b strings.Builder
		for _, choice := range resp.Choices {
			b.WriteString(choice.Delta.Content)
		}
		if b.Len() > 0 {
			return b.String(), nil
		}
	}
}

func (st *stream) Close() error {
	if st.closed {
		return nil
	}
	st.closed = true
	st.s.Close()
	return nil
}
