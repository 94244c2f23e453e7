package main

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/samcharles93/hush/internal/api"
	"github.com/samcharles93/hush/internal/logger"
	"github.com/samcharles93/hush/internal/webui"
	"github.com/urfave/cli/v3"
)

func serveCmd() *cli.Command {
	var (
		addr        string
		readTimeout time.Duration
	)

	flags := append(providerFlags(), promptFlags()...)
	flags = append(flags,
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "listen address",
			Value:       "127.0.0.1:8787",
			Sources:     cli.EnvVars("HUSH_ADDR"),
			Destination: &addr,
		},
		&cli.DurationFlag{
			Name:        "read-timeout",
			Usage:       "request header read timeout",
			Value:       30 * time.Second,
			Destination: &readTimeout,
		},
	)

	return &cli.Command{
		Name:   "serve",
		Usage:  "Serve the chat page and the streaming /api/chat endpoint",
		Flags:  flags,
		Before: setup,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyServeConfig(cmd, loadedConfig, &addr)

			stack, err := newChatStack(ctx)
			if err != nil {
				return err
			}
			server, err := api.NewServer(stack.source, webui.Handler(), api.Config{
				Directive:  stack.directive,
				Policy:     stack.policy,
				Generation: stack.generation,
				Filter:     stack.filter,
			}, log)
			if err != nil {
				return err
			}

			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)

			log.Info("starting server",
				"address", addr,
				"provider", providerName,
				"policy", stack.policy,
				"max_tokens", stack.generation.MaxOutputTokens,
				"gateway", stack.generation.Gateway != nil,
			)
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					// No write timeout: responses stream for as long as the model writes.
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}
