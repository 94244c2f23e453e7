package main

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/samcharles93/hush/internal/inference"
	"github.com/samcharles93/hush/internal/inference/gemini"
	"github.com/samcharles93/hush/internal/inference/mock"
	"github.com/samcharles93/hush/internal/inference/openaicompat"
	"github.com/samcharles93/hush/internal/inference/workersai"
	"github.com/samcharles93/hush/internal/prompt"
	"github.com/samcharles93/hush/internal/reasoning"
)

const (
	providerWorkersAI = "workersai"
	providerOpenAI    = "openai"
	providerGemini    = "gemini"
	providerEcho      = "echo"
)

// chatStack is everything a chat turn needs, resolved once at startup.
type chatStack struct {
	source     inference.Source
	directive  string
	policy     prompt.Policy
	filter     reasoning.Options
	generation inference.GenerationConfig
}

type providerOptions struct {
	Name          string
	Model         string
	AccountID     string
	APIToken      string
	OpenAIKey     string
	OpenAIBaseURL string
	GeminiKey     string
	Open          string
	Close         string
}

func currentProviderOptions() providerOptions {
	return providerOptions{
		Name:          providerName,
		Model:         model,
		AccountID:     cfAccountID,
		APIToken:      cfAPIToken,
		OpenAIKey:     openaiAPIKey,
		OpenAIBaseURL: openaiBaseURL,
		GeminiKey:     geminiAPIKey,
		Open:          openMarker,
		Close:         closeMarker,
	}
}

func buildSource(ctx context.Context, o providerOptions) (inference.Source, error) {
	switch strings.ToLower(strings.TrimSpace(o.Name)) {
	case providerWorkersAI, "":
		return workersai.New(workersai.Config{
			AccountID: o.AccountID,
			APIToken:  o.APIToken,
			Model:     o.Model,
		})
	case providerOpenAI:
		return openaicompat.New(openaicompat.Config{
			APIKey:  o.OpenAIKey,
			BaseURL: o.OpenAIBaseURL,
			Model:   o.Model,
		})
	case providerGemini:
		return gemini.New(ctx, gemini.Config{
			APIKey: o.GeminiKey,
			Model:  o.Model,
		})
	case providerEcho:
		return mock.Echo{Open: o.Open, Close: o.Close}, nil
	default:
		return nil, fmt.Errorf("unknown provider %q (want %s, %s, %s or %s)",
			o.Name, providerWorkersAI, providerOpenAI, providerGemini, providerEcho)
	}
}

func generationConfig() inference.GenerationConfig {
	gen := inference.DefaultGenerationConfig()
	if maxTokens > 0 {
		gen.MaxOutputTokens = int(min(maxTokens, math.MaxInt32))
	}
	if cfGateway != "" {
		gen.Gateway = &inference.GatewayOptions{
			ID:        cfGateway,
			SkipCache: cfSkipCache,
			CacheTTL:  cfCacheTTL,
		}
	}
	return gen
}

func filterOptions() reasoning.Options {
	return reasoning.Options{
		Open:      openMarker,
		Close:     closeMarker,
		TrimSpace: trimWhitespace,
	}
}

func newChatStack(ctx context.Context) (chatStack, error) {
	filter := filterOptions()
	if err := filter.Validate(); err != nil {
		return chatStack{}, err
	}
	policy, err := prompt.ParsePolicy(promptPolicy)
	if err != nil {
		return chatStack{}, err
	}
	directive, err := prompt.LoadDirective(systemPrompt, promptFile)
	if err != nil {
		return chatStack{}, err
	}
	src, err := buildSource(ctx, currentProviderOptions())
	if err != nil {
		return chatStack{}, err
	}
	return chatStack{
		source:     src,
		directive:  directive,
		policy:     policy,
		filter:     filter,
		generation: generationConfig(),
	}, nil
}
