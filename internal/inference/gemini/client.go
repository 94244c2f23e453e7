// Package gemini streams chat completions from the Google Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"math"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/samcharles93/hush/internal/inference"
	"github.com/samcharles93/hush/internal/logger"
)

const (
	DefaultModel = "gemini-2.5-flash"
	providerName = "gemini"
)

var _ inference.Source = (*Client)(nil)

type Config struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

type Client struct {
	client *genai.Client
	model  string
}

func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: missing API key")
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  cfg.HTTPClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &Client{client: gc, model: model}, nil
}

// Stream starts the generation and waits for the first response chunk so
// that a rejected call surfaces here rather than mid-stream.
func (c *Client) Stream(ctx context.Context, conv []inference.Message, cfg inference.GenerationConfig) (inference.Stream, error) {
	contents, system := ConvertConversation(conv)
	config := &genai.GenerateContentConfig{
		SystemInstruction: system,
	}
	config.MaxOutputTokens = maxOutputTokens(cfg.MaxOutputTokens)

	log := logger.FromContext(ctx)
	log.Debug("gemini request", "model", c.model, "contents", len(contents), "max_output_tokens", config.MaxOutputTokens)
	st := newStream(c.client.Models.GenerateContentStream(ctx, c.model, contents, config))
	if err := st.prime(); err != nil {
		st.Close()
		log.Debug("gemini rejected", "error", err)
		return nil, err
	}
	return st, nil
}

// maxOutputTokens maps a token limit onto the int32 the API takes. Zero or
// negative means no limit; larger values saturate.
func maxOutputTokens(n int) int32 {
	if n <= 0 {
		return 0
	}
	return int32(min(n, math.MaxInt32))
}

// ConvertConversation maps messages to genai contents. System messages are
// merged into a single system instruction; assistant turns use the "model"
// role.
func ConvertConversation(conv []inference.Message) ([]*genai.Content, *genai.Content) {
	var (
		contents []*genai.Content
		system   []string
	)
	for _, m := range conv {
		switch m.Role {
		case inference.RoleSystem:
			system = append(system, m.Content)
		case inference.RoleAssistant:
			contents = append(contents, &genai.Content{
				Role:  string(genai.RoleModel),
				Parts: []*genai.Part{{Text: m.Content}},
			})
		default:
			contents = append(contents, &genai.Content{
				Role:  string(genai.RoleUser),
				Parts: []*genai.Part{{Text: m.Content}},
			})
		}
	}
	if len(system) == 0 {
		return contents, nil
	}
	return contents, &genai.Content{
		Parts: []*genai.Part{{Text: strings.Join(system, "\n\n")}},
	}
}

// responseText concatenates the visible text of the first candidate.
// Thought parts are skipped.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	cand := resp.Candidates[0]
	if cand == nil || cand.Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range cand.Content.Parts {
		if p == nil || p.Thought {
			continue
		}
		b.WriteString(p.Text)
	}
	return b.String()
}

type stream struct {
	pull   func() (*genai.GenerateContentResponse, error, bool)
	stop   func()
	head   string
	done   bool
	closed bool
}

func newStream(seq iter.Seq2[*genai.GenerateContentResponse, error]) *stream {
	next, stop := iter.Pull2(seq)
	return &stream{pull: next, stop: stop}
}

// prime reads until the first non-empty chunk, the end, or an error.
func (s *stream) prime() error {
	text, err := s.read()
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return err
	}
	s.head = text
	return nil
}

func (s *stream) read() (string, error) {
	for {
		if s.done || s.closed {
			return "", io.EOF
		}
		resp, err, ok := s.pull()
		if !ok {
			s.done = true
			return "", io.EOF
		}
		if err != nil {
			return "", providerError(err)
		}
		if text := responseText(resp); text != "" {
			return text, nil
		}
	}
}

func (s *stream) Next() (string, error) {
	if s.head != "" {
		text := s.head
		s.head = ""
		return text, nil
	}
	return s.read()
}

func (s *stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.stop()
	return nil
}

func providerError(err error) error {
	perr := &inference.ProviderError{Provider: providerName, Err: err}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		perr.Status = apiErr.Code
		perr.Message = apiErr.Message
	}
	return perr
}
