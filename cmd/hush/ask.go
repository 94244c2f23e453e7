package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/samcharles93/hush/internal/inference"
	"github.com/samcharles93/hush/internal/logger"
	"github.com/samcharles93/hush/internal/pipeline"
	"github.com/samcharles93/hush/internal/prompt"
	"github.com/samcharles93/hush/internal/reasoning"
	"github.com/urfave/cli/v3"
)

// stdinIsTTY is a small seam for tests.
var stdinIsTTY = func() bool { return logger.IsTerminal(os.Stdin) }

var errNoQuestion = errors.New("no prompt given (pass it as arguments or on stdin)")

func askCmd() *cli.Command {
	var (
		outputMode string
		raw        bool
	)

	flags := append(providerFlags(), promptFlags()...)
	flags = append(flags,
		&cli.StringFlag{
			Name:        "output",
			Aliases:     []string{"o"},
			Usage:       "output mode (instant, quiet)",
			Value:       string(OutputInstant),
			Destination: &outputMode,
		},
		&cli.BoolFlag{
			Name:        "raw",
			Usage:       "escape control characters in the answer",
			Destination: &raw,
		},
	)

	return &cli.Command{
		Name:      "ask",
		Usage:     "Send one prompt and print the answer without its reasoning",
		ArgsUsage: "[prompt...]",
		Flags:     flags,
		Before:    setup,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyProviderConfig(cmd, loadedConfig)

			mode, err := parseOutputMode(outputMode)
			if err != nil {
				return err
			}
			question, err := readQuestion(cmd.Args().Slice(), os.Stdin, stdinIsTTY())
			if err != nil {
				return err
			}
			stack, err := newChatStack(ctx)
			if err != nil {
				return err
			}
			return ask(ctx, stack, question, NewAnswerWriter(os.Stdout, mode, raw))
		},
	}
}

func readQuestion(args []string, stdin io.Reader, tty bool) (string, error) {
	var text string
	switch {
	case len(args) > 0:
		text = strings.Join(args, " ")
	case !tty:
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		text = string(data)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errNoQuestion
	}
	return text, nil
}

// ask runs one user turn through the same directive policy, source and
// filter as the HTTP endpoint.
func ask(ctx context.Context, stack chatStack, question string, out *AnswerWriter) error {
	log := logger.FromContext(ctx)

	conv := prompt.Inject([]inference.Message{{Role: inference.RoleUser, Content: question}}, stack.directive, stack.policy)
	f, err := reasoning.NewFilter(stack.filter)
	if err != nil {
		return err
	}
	stream, err := stack.source.Stream(ctx, conv, stack.generation)
	if err != nil {
		return fmt.Errorf("start stream: %w", err)
	}

	res, err := pipeline.Run(ctx, stream, f, out.Write)
	if err != nil {
		return err
	}
	if res.Unterminated {
		log.Warn("answer ended inside a reasoning block")
	}
	log.Debug("answer complete",
		"fragments", res.Fragments,
		"bytes", res.Bytes,
		"blocks", res.Stats.Blocks,
		"suppressed_bytes", res.Stats.SuppressedBytes,
	)
	return out.Finish()
}
