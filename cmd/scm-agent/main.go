package main

import (
	"log/slog"
	"os"

	"github.com/partsline/scm-agent/internal/cli"
)

func main() {
	// Logs go to stderr: the serve-tools command owns stdout as its
	// transport.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	if err := cli.NewRoot(logger).Execute(); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}
