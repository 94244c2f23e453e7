package inference

import (
	"fmt"
	"time"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	default:
		return false
	}
}

func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Message is one role-tagged turn of a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// DefaultMaxOutputTokens matches the limit the chat route requests upstream.
const DefaultMaxOutputTokens = 1024

// GatewayOptions routes a request through an AI gateway that can cache
// responses. A nil *GatewayOptions means "call the provider directly".
type GatewayOptions struct {
	ID        string
	SkipCache bool
	CacheTTL  time.Duration
}

type GenerationConfig struct {
	MaxOutputTokens int
	Stream          bool
	Gateway         *GatewayOptions
}

func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		MaxOutputTokens: DefaultMaxOutputTokens,
		Stream:          true,
	}
}
