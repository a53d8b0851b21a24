package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/partsline/scm-agent/internal/config"
	"github.com/partsline/scm-agent/internal/eval"
	"github.com/partsline/scm-agent/internal/loop"
)

func newEvalCommand(logger *slog.Logger) *cobra.Command {
	var (
		mode      string
		casesPath string
		dbPath    string
		jsonPath  string
		startID   int
	)

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Run the graded test set against the agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			if strings.TrimSpace(mode) != "" {
				cfg.ServerMode = mode
			}
			if strings.TrimSpace(casesPath) == "" {
				casesPath = cfg.EvalCasesPath
			}
			if strings.TrimSpace(dbPath) == "" {
				dbPath = cfg.EvalDBPath
			}

			cases, err := eval.LoadCases(casesPath)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			sess, err := openSession(ctx, cfg, logger, loop.Hooks{})
			if err != nil {
				return err
			}
			defer sess.Close()

			if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
				return err
			}
			store, err := eval.NewStore(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.AutoMigrate(ctx); err != nil {
				return err
			}

			runner := eval.NewRunner(sess, store, logger, cmd.OutOrStdout())
			_, err = runner.Run(ctx, cases, eval.RunOptions{
				Model:        cfg.LLMModel,
				Mode:         cfg.ServerMode,
				StartID:      startID,
				JSONPath:     jsonPath,
				AllowRefusal: cfg.ServerMode != config.ModeCode,
			})
			return err
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", "capability mode: standard or code (defaults to SCM_AGENT_SERVER_MODE)")
	cmd.Flags().StringVar(&casesPath, "cases", "", "path to the JSON test set (defaults to SCM_AGENT_EVAL_CASES_PATH)")
	cmd.Flags().StringVar(&dbPath, "db", "", "sqlite path for run history (defaults to SCM_AGENT_EVAL_DB_PATH)")
	cmd.Flags().StringVar(&jsonPath, "json", "", "write an answers file to this path")
	cmd.Flags().IntVar(&startID, "start-id", 0, "resume: skip cases with an id below this")
	return cmd
}
