// Package workersai streams chat completions from Cloudflare Workers AI,
// either directly or through an AI Gateway.
package workersai

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/samcharles93/hush/internal/inference"
	"github.com/samcharles93/hush/internal/logger"
	"github.com/samcharles93/hush/internal/version"
)

const (
	DefaultBaseURL    = "https://api.cloudflare.com/client/v4"
	DefaultGatewayURL = "https://gateway.ai.cloudflare.com/v1"
	DefaultModel      = "@cf/deepseek-ai/deepseek-r1-distill-qwen-32b"

	providerName = "workersai"

	// maxErrorBody caps how much of a failed response is read for the
	// error message.
	maxErrorBody = 64 << 10
)

var _ inference.Source = (*Client)(nil)

type Config struct {
	AccountID  string
	APIToken   string
	Model      string
	BaseURL    string
	GatewayURL string
	HTTPClient *http.Client
}

type Client struct {
	accountID  string
	apiToken   string
	model      string
	baseURL    string
	gatewayURL string
	http       *http.Client
}

func New(cfg Config) (*Client, error) {
	if cfg.AccountID == "" {
		return nil, fmt.Errorf("workersai: missing account id")
	}
	if cfg.APIToken == "" {
		return nil, fmt.Errorf("workersai: missing API token")
	}
	c := &Client{
		accountID:  cfg.AccountID,
		apiToken:   cfg.APIToken,
		model:      cfg.Model,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		gatewayURL: strings.TrimRight(cfg.GatewayURL, "/"),
		http:       cfg.HTTPClient,
	}
	if c.model == "" {
		c.model = DefaultModel
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.gatewayURL == "" {
		c.gatewayURL = DefaultGatewayURL
	}
	if c.http == nil {
		// No overall timeout: a stream lives as long as the model writes.
		// Cancellation comes from the request context.
		c.http = &http.Client{}
	}
	return c, nil
}

type runRequest struct {
	Messages  []inference.Message `json:"messages"`
	MaxTokens int                 `json:"max_tokens,omitempty"`
	Stream    bool                `json:"stream"`
}

type envelope struct {
	Result *struct {
		Response string `json:"response"`
	} `json:"result"`
	Success bool `json:"success"`
	Errors  []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

func (c *Client) endpoint(gw *inference.GatewayOptions) string {
	account := url.PathEscape(c.accountID)
	if gw != nil && gw.ID != "" {
		return fmt.Sprintf("%s/%s/%s/workers-ai/%s", c.gatewayURL, account, url.PathEscape(gw.ID), c.model)
	}
	return fmt.Sprintf("%s/accounts/%s/ai/run/%s", c.baseURL, account, c.model)
}

// Stream sends conv to the model. Rejections (non-2xx) are returned here,
// before any fragment is read, as *inference.ProviderError.
func (c *Client) Stream(ctx context.Context, conv []inference.Message, cfg inference.GenerationConfig) (inference.Stream, error) {
	body, err := json.Marshal(runRequest{
		Messages:  conv,
		MaxTokens: cfg.MaxOutputTokens,
		Stream:    cfg.Stream,
	})
	if err != nil {
		return nil, fmt.Errorf("workersai: marshal request: %w", err)
	}

	endpoint := c.endpoint(cfg.Gateway)
	log := logger.FromContext(ctx)
	log.Debug("workersai request", "model", c.model, "messages", len(conv), "stream", cfg.Stream, "gateway", cfg.Gateway != nil && cfg.Gateway.ID != "")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("workersai: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	req.Header.Set("User-Agent", version.UserAgent())
	if cfg.Stream {
		req.Header.Set("Accept", "text/event-stream")
	}
	if gw := cfg.Gateway; gw != nil && gw.ID != "" {
		if gw.SkipCache {
			req.Header.Set("cf-aig-skip-cache", "true")
		}
		if gw.CacheTTL > 0 {
			req.Header.Set("cf-aig-cache-ttl", strconv.Itoa(int(gw.CacheTTL/time.Second)))
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &inference.ProviderError{Provider: providerName, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		log.Debug("workersai rejected", "status", resp.StatusCode)
		return nil, decodeError(resp)
	}

	if !cfg.Stream {
		defer resp.Body.Close()
		var env envelope
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
			return nil, &inference.ProviderError{Provider: providerName, Status: resp.StatusCode, Err: err}
		}
		if env.Result == nil {
			return inference.NewSliceStream(), nil
		}
		return inference.NewSliceStream(env.Result.Response), nil
	}

	return newEventStream(resp.Body), nil
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	perr := &inference.ProviderError{Provider: providerName, Status: resp.StatusCode}

	var env envelope
	if json.Unmarshal(raw, &env) == nil && len(env.Errors) > 0 {
		msgs := make([]string, 0, len(env.Errors))
		for _, e := range env.Errors {
			msgs = append(msgs, e.Message)
		}
		perr.Message = strings.Join(msgs, "; ")
		return perr
	}
	perr.Message = strings.TrimSpace(string(raw))
	if perr.Message == "" {
		perr.Message = http.StatusText(resp.StatusCode)
	}
	return perr
}
