package main

import (
	"time"

	"github.com/samcharles93/hush/internal/inference"
	"github.com/urfave/cli/v3"
)

var (
	configFile string
	logLevel   string
	logFormat  string
	debug      bool

	providerName   string
	model          string
	maxTokens      int64
	cfAccountID    string
	cfAPIToken     string
	cfGateway      string
	cfSkipCache    bool
	cfCacheTTL     time.Duration
	openaiAPIKey   string
	openaiBaseURL  string
	geminiAPIKey   string
	systemPrompt   string
	promptFile     string
	promptPolicy   string
	openMarker     string
	closeMarker    string
	trimWhitespace bool
)

func rootFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Usage:       "path to config file",
			Value:       configPath(),
			Sources:     cli.EnvVars("HUSH_CONFIG"),
			Destination: &configFile,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("HUSH_LOG_LEVEL"),
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (auto, pretty, json, text)",
			Value:       "auto",
			Sources:     cli.EnvVars("HUSH_LOG_FORMAT"),
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

func providerFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "provider",
			Aliases:     []string{"p"},
			Usage:       "inference provider (workersai, openai, gemini, echo)",
			Value:       providerWorkersAI,
			Sources:     cli.EnvVars("HUSH_PROVIDER"),
			Destination: &providerName,
		},
		&cli.StringFlag{
			Name:        "model",
			Aliases:     []string{"m"},
			Usage:       "model id (provider default when empty)",
			Sources:     cli.EnvVars("HUSH_MODEL"),
			Destination: &model,
		},
		&cli.Int64Flag{
			Name:        "max-tokens",
			Usage:       "maximum output tokens requested upstream",
			Value:       inference.DefaultMaxOutputTokens,
			Destination: &maxTokens,
		},
		&cli.StringFlag{
			Name:        "account-id",
			Usage:       "Cloudflare account id",
			Sources:     cli.EnvVars("CLOUDFLARE_ACCOUNT_ID"),
			Destination: &cfAccountID,
		},
		&cli.StringFlag{
			Name:        "api-token",
			Usage:       "Cloudflare API token",
			Sources:     cli.EnvVars("CLOUDFLARE_API_TOKEN"),
			Destination: &cfAPIToken,
		},
		&cli.StringFlag{
			Name:        "gateway",
			Usage:       "Cloudflare AI Gateway id (direct call when empty)",
			Sources:     cli.EnvVars("CLOUDFLARE_GATEWAY_ID"),
			Destination: &cfGateway,
		},
		&cli.BoolFlag{
			Name:        "skip-cache",
			Usage:       "ask the AI Gateway to bypass its cache",
			Destination: &cfSkipCache,
		},
		&cli.DurationFlag{
			Name:        "cache-ttl",
			Usage:       "AI Gateway cache TTL",
			Destination: &cfCacheTTL,
		},
		&cli.StringFlag{
			Name:        "openai-api-key",
			Usage:       "API key for OpenAI-compatible endpoints",
			Sources:     cli.EnvVars("OPENAI_API_KEY"),
			Destination: &openaiAPIKey,
		},
		&cli.StringFlag{
			Name:        "openai-base-url",
			Usage:       "base URL for OpenAI-compatible endpoints",
			Sources:     cli.EnvVars("OPENAI_BASE_URL"),
			Destination: &openaiBaseURL,
		},
		&cli.StringFlag{
			Name:        "gemini-api-key",
			Usage:       "Google Gemini API key",
			Sources:     cli.EnvVars("GEMINI_API_KEY"),
			Destination: &geminiAPIKey,
		},
	}
}

func promptFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "system-prompt",
			Usage:       "system directive text (built-in directive when empty)",
			Destination: &systemPrompt,
		},
		&cli.StringFlag{
			Name:        "system-prompt-file",
			Usage:       "read the system directive from a file",
			Destination: &promptFile,
		},
		&cli.StringFlag{
			Name:        "prompt-policy",
			Usage:       "directive injection (always, if-absent)",
			Value:       "always",
			Destination: &promptPolicy,
		},
		&cli.StringFlag{
			Name:        "open-marker",
			Usage:       "reasoning block open marker",
			Value:       "<think>",
			Destination: &openMarker,
		},
		&cli.StringFlag{
			Name:        "close-marker",
			Usage:       "reasoning block close marker",
			Value:       "</think>",
			Destination: &closeMarker,
		},
		&cli.BoolFlag{
			Name:        "trim",
			Usage:       "drop leading and trailing whitespace of each answer",
			Value:       true,
			Destination: &trimWhitespace,
		},
	}
}
