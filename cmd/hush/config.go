package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the hush configuration file (~/.config/hush/config.yaml).
// Pointers distinguish "not set" from zero values.
type Config struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	MaxTokens *int64 `yaml:"max_tokens"`

	Cloudflare struct {
		AccountID string         `yaml:"account_id"`
		APIToken  string         `yaml:"api_token"`
		Gateway   string         `yaml:"gateway"`
		SkipCache *bool          `yaml:"skip_cache"`
		CacheTTL  *time.Duration `yaml:"cache_ttl"`
	} `yaml:"cloudflare"`

	OpenAI struct {
		APIKey  string `yaml:"api_key"`
		BaseURL string `yaml:"base_url"`
	} `yaml:"openai"`

	Gemini struct {
		APIKey string `yaml:"api_key"`
	} `yaml:"gemini"`

	Prompt struct {
		Text   string `yaml:"text"`
		File   string `yaml:"file"`
		Policy string `yaml:"policy"`
	} `yaml:"prompt"`

	Filter struct {
		Open  string `yaml:"open"`
		Close string `yaml:"close"`
		Trim  *bool  `yaml:"trim"`
	} `yaml:"filter"`

	ServerAddress string `yaml:"server_address"`
	LogLevel      string `yaml:"log_level"`
	LogFormat     string `yaml:"log_format"`
}

// loadedConfig is read once by the root Before hook.
var loadedConfig Config

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "hush", "config.yaml")
}

// LoadConfig reads the config file. A missing file yields a zero Config.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return Config{}, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// applyLoggingConfig fills logging flags that were not set on the command
// line or in the environment.
func applyLoggingConfig(c *cli.Command, cfg Config) {
	setString(c, "log-level", cfg.LogLevel, &logLevel)
	setString(c, "log-format", cfg.LogFormat, &logFormat)
}

// applyProviderConfig fills provider, prompt and filter flags from the file.
func applyProviderConfig(c *cli.Command, cfg Config) {
	setString(c, "provider", cfg.Provider, &providerName)
	setString(c, "model", cfg.Model, &model)
	if cfg.MaxTokens != nil && !c.IsSet("max-tokens") {
		maxTokens = *cfg.MaxTokens
	}

	setString(c, "account-id", cfg.Cloudflare.AccountID, &cfAccountID)
	setString(c, "api-token", cfg.Cloudflare.APIToken, &cfAPIToken)
	setString(c, "gateway", cfg.Cloudflare.Gateway, &cfGateway)
	if cfg.Cloudflare.SkipCache != nil && !c.IsSet("skip-cache") {
		cfSkipCache = *cfg.Cloudflare.SkipCache
	}
	if cfg.Cloudflare.CacheTTL != nil && !c.IsSet("cache-ttl") {
		cfCacheTTL = *cfg.Cloudflare.CacheTTL
	}

	setString(c, "openai-api-key", cfg.OpenAI.APIKey, &openaiAPIKey)
	setString(c, "openai-base-url", cfg.OpenAI.BaseURL, &openaiBaseURL)
	setString(c, "gemini-api-key", cfg.Gemini.APIKey, &geminiAPIKey)

	setString(c, "system-prompt", cfg.Prompt.Text, &systemPrompt)
	setString(c, "system-prompt-file", cfg.Prompt.File, &promptFile)
	setString(c, "prompt-policy", cfg.Prompt.Policy, &promptPolicy)

	setString(c, "open-marker", cfg.Filter.Open, &openMarker)
	setString(c, "close-marker", cfg.Filter.Close, &closeMarker)
	if cfg.Filter.Trim != nil && !c.IsSet("trim") {
		trimWhitespace = *cfg.Filter.Trim
	}
}

// applyServeConfig applies config file defaults to serve command variables.
func applyServeConfig(c *cli.Command, cfg Config, addr *string) {
	applyProviderConfig(c, cfg)
	setString(c, "addr", cfg.ServerAddress, addr)
}

func setString(c *cli.Command, flag, value string, dst *string) {
	if value != "" && !c.IsSet(flag) {
		*dst = value
	}
}
