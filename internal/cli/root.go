package cli

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/partsline/scm-agent/internal/config"
	"github.com/partsline/scm-agent/internal/llm"
	"github.com/partsline/scm-agent/internal/llm/openai"
	"github.com/partsline/scm-agent/internal/loop"
	"github.com/partsline/scm-agent/internal/session"
)

const version = "0.1.0"

func NewRoot(logger *slog.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:   "scm-agent",
		Short: "Supply-chain agent over a tool-serving subprocess",
	}

	root.AddCommand(newChatCommand(logger))
	root.AddCommand(newEvalCommand(logger))
	root.AddCommand(newServeToolsCommand(logger))
	root.AddCommand(newVersionCommand())

	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(version)
		},
	}
}

func newCompleter(cfg config.Config) llm.Completer {
	return openai.New(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, time.Duration(cfg.LLMTimeoutSec)*time.Second)
}

func openSession(ctx context.Context, cfg config.Config, logger *slog.Logger, hooks loop.Hooks) (*session.Session, error) {
	return session.New(ctx, session.Options{
		Config:    cfg,
		Completer: newCompleter(cfg),
		Logger:    logger,
		Hooks:     hooks,
	})
}
