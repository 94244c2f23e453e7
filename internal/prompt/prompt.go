// Package prompt decides how the fixed system directive is placed in front
// of a conversation.
package prompt

import (
	"fmt"
	"os"
	"strings"

	"github.com/samcharles93/hush/internal/inference"
)

// DefaultDirective asks the model for the final answer only. Reasoning
// markers are still stripped from the output whatever the model does.
const DefaultDirective = `You are an AI assistant.

Strict rules:
- Never output <think> or </think>.
- Do not show reasoning, analysis or your thought process.
- No meta commentary.
- Do not explain your steps.

Answer format:
- The final answer only.
- Get straight to the point.
- No preamble.
- No closing remarks.
- No small talk.`

// Policy selects how the directive is injected.
type Policy string

const (
	// PolicyAlways prepends the directive even when the client sent its own
	// system message.
	PolicyAlways Policy = "always"
	// PolicyIfAbsent prepends the directive only when the conversation does
	// not already start with a system message.
	PolicyIfAbsent Policy = "if-absent"
)

func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyAlways, PolicyIfAbsent:
		return p, nil
	case "":
		return PolicyAlways, nil
	default:
		return "", fmt.Errorf("unknown prompt policy %q (want %q or %q)", s, PolicyAlways, PolicyIfAbsent)
	}
}

// Inject returns a new conversation with the directive applied according to
// p. conv is never modified.
func Inject(conv []inference.Message, directive string, p Policy) []inference.Message {
	if p == PolicyIfAbsent && len(conv) > 0 && conv[0].Role == inference.RoleSystem {
		return append([]inference.Message(nil), conv...)
	}
	out := make([]inference.Message, 0, len(conv)+1)
	out = append(out, inference.Message{Role: inference.RoleSystem, Content: directive})
	return append(out, conv...)
}

// LoadDirective resolves the directive once at startup. A file path wins
// over inline text; both empty means DefaultDirective.
func LoadDirective(text, path string) (string, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read system prompt: %w", err)
		}
		text = string(data)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return DefaultDirective, nil
	}
	return text, nil
}
