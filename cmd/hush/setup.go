package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/samcharles93/hush/internal/logger"
	"github.com/urfave/cli/v3"
)

// setup loads the config file and installs the logger in the context. It
// runs as the Before hook of every command that talks to a provider, after
// that command's flags (including the inherited root flags) are parsed.
func setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	cfg, err := LoadConfig(configFile)
	if err != nil {
		return ctx, err
	}
	loadedConfig = cfg
	applyLoggingConfig(cmd, cfg)

	level := logger.ParseLevel(logLevel)
	if debug {
		level = slog.LevelDebug
	}
	format, err := logger.ParseFormat(logFormat)
	if err != nil {
		return ctx, err
	}
	log := logger.ForFile(os.Stderr, format, level)
	if configFile != "" {
		log.Debug("config", "path", configFile)
	}
	return logger.WithContext(ctx, log), nil
}
