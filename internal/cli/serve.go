package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/partsline/scm-agent/internal/config"
	"github.com/partsline/scm-agent/internal/scm"
	"github.com/partsline/scm-agent/internal/server"
)

func newServeToolsCommand(logger *slog.Logger) *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "serve-tools",
		Short: "Serve the supply-chain capabilities over stdio",
		Long:  "Runs the MCP capability server on stdin/stdout. Spawned by the chat and eval commands as their subprocess.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			if strings.TrimSpace(mode) != "" {
				cfg.ServerMode = mode
			}

			dataset, err := scm.Load(cfg.DatasetPath)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			srv := server.New(server.Config{
				Mode:           cfg.ServerMode,
				Dataset:        dataset,
				EmptyHint:      cfg.SandboxEmptyHint,
				ScriptTimeout:  time.Duration(cfg.SandboxTimeoutSec) * time.Second,
				MaxOutputBytes: cfg.SandboxMaxOutputKiB * 1024,
				Logger:         logger,
			})
			return srv.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", "capability mode: standard or code (defaults to SCM_AGENT_SERVER_MODE)")
	return cmd
}
