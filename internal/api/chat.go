package api

import (
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/labstack/echo/v5"
	"github.com/samcharles93/hush/internal/inference"
	"github.com/samcharles93/hush/internal/logger"
	"github.com/samcharles93/hush/internal/pipeline"
	"github.com/samcharles93/hush/internal/prompt"
	"github.com/samcharles93/hush/internal/reasoning"
)

// ChatRequest is the body of POST /api/chat. A missing messages field is an
// empty conversation.
type ChatRequest struct {
	Messages []ChatMessage `json:"messages"`
}

// ChatMessage content is either a string or a list of typed parts of which
// only the text parts are kept.
type ChatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

func (s *Server) handleChat(c *echo.Context) error {
	req := c.Request()
	log := s.log.With("request_id", uuid.NewString())
	ctx := logger.WithContext(req.Context(), log)
	start := s.clock()

	body, err := decodeJSON[ChatRequest](req.Body)
	if err != nil {
		log.Warn("decode chat request", "error", err)
		return writeFailure(c)
	}

	conv, err := s.conversation(body)
	if err != nil {
		log.Warn("build conversation", "error", err)
		return writeFailure(c)
	}

	filter, err := reasoning.NewFilter(s.cfg.Filter)
	if err != nil {
		log.Error("create filter", "error", err)
		return writeFailure(c)
	}

	stream, err := s.source.Stream(ctx, conv, s.cfg.Generation)
	if err != nil {
		log.Error("upstream rejected request", "error", err, "messages", len(conv))
		return writeFailure(c)
	}

	w, err := NewEventWriter(c)
	if err != nil {
		_ = stream.Close()
		log.Error("open event stream", "error", err)
		return writeFailure(c)
	}

	res, err := pipeline.Run(ctx, stream, filter, w.Send)
	if res.Unterminated {
		log.Warn("stream ended inside a reasoning block", "suppressed_bytes", res.Stats.SuppressedBytes)
	}
	if err != nil {
		log.Error("stream aborted", "error", err, "fragments", res.Fragments, "events", w.Events())
		return nil
	}
	if err := w.Done(); err != nil {
		log.Warn("write end of stream", "error", err)
		return nil
	}

	log.Info("chat completed",
		"fragments", res.Fragments,
		"events", res.Emitted,
		"bytes", res.Bytes,
		"blocks", res.Stats.Blocks,
		"stray_markers", res.Stats.StrayMarkers,
		"took", s.clock().Sub(start),
	)
	return nil
}

// conversation validates the request messages, strips reasoning left in
// earlier assistant turns and applies the system directive policy.
func (s *Server) conversation(req ChatRequest) ([]inference.Message, error) {
	conv, err := chatMessagesToConversation(req.Messages)
	if err != nil {
		return nil, err
	}
	conv, err = inference.SanitizeHistory(conv, s.cfg.Filter)
	if err != nil {
		return nil, err
	}
	return prompt.Inject(conv, s.cfg.Directive, s.cfg.Policy), nil
}

func chatMessagesToConversation(msgs []ChatMessage) ([]inference.Message, error) {
	out := make([]inference.Message, 0, len(msgs))
	for i, m := range msgs {
		role, err := inference.ParseRole(m.Role)
		if err != nil {
			return nil, newInvalidRequest(fmt.Sprintf("messages[%d]: %v", i, err))
		}
		content, err := messageText(m.Content)
		if err != nil {
			return nil, newInvalidRequest(fmt.Sprintf("messages[%d].content: %v", i, err))
		}
		out = append(out, inference.Message{Role: role, Content: content})
	}
	return out, nil
}

func messageText(content any) (string, error) {
	switch v := content.(type) {
	case string:
		return v, nil
	case nil:
		return "", nil
	case []any:
		var parts []string
		for _, part := range v {
			pm, ok := part.(map[string]any)
			if !ok {
				continue
			}
			if typ, _ := pm["type"].(string); typ == "text" {
				if text, ok := pm["text"].(string); ok {
					parts = append(parts, text)
				}
			}
		}
		return strings.Join(parts, "\n"), nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("unsupported type %T", v)
		}
		return string(b), nil
	}
}
