// Package api serves the chat endpoint and the bundled web page.
package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/samcharles93/hush/internal/inference"
	"github.com/samcharles93/hush/internal/logger"
	"github.com/samcharles93/hush/internal/prompt"
	"github.com/samcharles93/hush/internal/reasoning"
)

const (
	ChatPath  = "/api/chat"
	apiPrefix = "/api/"
)

// Config is fixed for the lifetime of a Server.
type Config struct {
	Directive  string
	Policy     prompt.Policy
	Generation inference.GenerationConfig
	Filter     reasoning.Options
}

func (c Config) withDefaults() Config {
	if c.Directive == "" {
		c.Directive = prompt.DefaultDirective
	}
	if c.Policy == "" {
		c.Policy = prompt.PolicyAlways
	}
	if c.Generation.MaxOutputTokens <= 0 {
		c.Generation.MaxOutputTokens = inference.DefaultMaxOutputTokens
	}
	c.Generation.Stream = true
	return c
}

type Server struct {
	source inference.Source
	assets http.Handler
	cfg    Config
	log    logger.Logger
	clock  func() time.Time
}

// NewServer validates cfg and returns a Server that streams from source.
// A nil assets handler answers every non-API path with 404.
func NewServer(source inference.Source, assets http.Handler, cfg Config, log logger.Logger) (*Server, error) {
	if source == nil {
		return nil, fmt.Errorf("api: source is required")
	}
	if err := cfg.Filter.Validate(); err != nil {
		return nil, fmt.Errorf("api: %w", err)
	}
	if assets == nil {
		assets = http.NotFoundHandler()
	}
	if log == nil {
		log = logger.Default()
	}
	return &Server{
		source: source,
		assets: assets,
		cfg:    cfg.withDefaults(),
		log:    log,
		clock:  time.Now,
	}, nil
}

// Register installs the routes on e. Static assets and method checks for the
// chat path run before routing so that every path outside /api/ reaches the
// asset handler untouched, whatever the method.
func (s *Server) Register(e *echo.Echo) {
	e.Pre(s.dispatch)
	e.POST(ChatPath, s.handleChat)
}

func (s *Server) dispatch(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c *echo.Context) error {
		req := c.Request()
		path := req.URL.Path
		switch {
		case path == ChatPath:
			if req.Method != http.MethodPost {
				return writeMethodNotAllowed(c)
			}
			return next(c)
		case strings.HasPrefix(path, apiPrefix):
			return next(c)
		default:
			s.assets.ServeHTTP(c.Response(), req)
			return nil
		}
	}
}
