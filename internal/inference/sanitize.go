package inference

import (
	"strings"

	"github.com/samcharles93/hush/internal/reasoning"
)

// Chat-template sentinels some models leak into their visible answer.
var sentinelTokens = []string{
	"<|im_end|>",
	"<|endoftext|>",
	"<|end_of_text|>",
	"<|eot_id|>",
	"</s>",
}

// SanitizeAssistantText removes reasoning blocks and sentinel artifacts from
// assistant text before it is fed back into a later turn.
func SanitizeAssistantText(text string, opts reasoning.Options) (string, error) {
	opts.TrimSpace = true
	s, err := reasoning.Strip(text, opts)
	if err != nil {
		return "", err
	}
	for _, token := range sentinelTokens {
		s = strings.ReplaceAll(s, token, "")
	}
	return strings.TrimSpace(s), nil
}

// SanitizeHistory returns a copy of conv with every assistant turn passed
// through SanitizeAssistantText. Other roles are left untouched.
func SanitizeHistory(conv []Message, opts reasoning.Options) ([]Message, error) {
	out := make([]Message, len(conv))
	for i, m := range conv {
		if m.Role == RoleAssistant {
			text, err := SanitizeAssistantText(m.Content, opts)
			if err != nil {
				return nil, err
			}
			m.Content = text
		}
		out[i] = m
	}
	return out, nil
}
