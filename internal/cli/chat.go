package cli

import (
	"bufio"
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/partsline/scm-agent/internal/config"
	"github.com/partsline/scm-agent/internal/llm"
	"github.com/partsline/scm-agent/internal/loop"
)

func newChatCommand(logger *slog.Logger) *cobra.Command {
	var (
		mode    string
		message string
	)

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Talk to the supply-chain agent",
		Long:  "Starts the capability server subprocess, connects a session, and answers questions interactively or one-shot.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			if strings.TrimSpace(mode) != "" {
				cfg.ServerMode = mode
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			hooks := loop.Hooks{
				OnInvocation: func(call llm.ToolCall, result string, err error) {
					cmd.Printf("Tool call: %s(%s)\n", call.Name, compactLine(call.Arguments, 120))
				},
			}
			sess, err := openSession(ctx, cfg, logger, hooks)
			if err != nil {
				return err
			}
			defer sess.Close()

			text := strings.TrimSpace(message)
			if text == "" && len(args) > 0 {
				text = strings.TrimSpace(strings.Join(args, " "))
			}
			if text != "" {
				outcome, err := sess.Ask(ctx, text)
				if err != nil {
					return err
				}
				cmd.Println(strings.TrimSpace(outcome.Final))
				return nil
			}

			cmd.Printf("Connected (%s mode, capabilities: %s). Type 'exit' to quit.\n",
				cfg.ServerMode, strings.Join(sess.Capabilities(), ", "))
			return runInteractiveChat(ctx, cmd, sess)
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", "capability mode: standard or code (defaults to SCM_AGENT_SERVER_MODE)")
	cmd.Flags().StringVarP(&message, "message", "m", "", "single question to ask (non-interactive mode)")
	return cmd
}

type asker interface {
	Ask(ctx context.Context, query string) (loop.Outcome, error)
}

func runInteractiveChat(ctx context.Context, cmd *cobra.Command, sess asker) error {
	scanner := bufio.NewScanner(cmd.InOrStdin())
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		cmd.Print("you> ")
		if !scanner.Scan() {
			break
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		switch strings.ToLower(text) {
		case "exit", "quit", "/exit", "/quit":
			return nil
		}

		outcome, err := sess.Ask(ctx, text)
		if err != nil {
			cmd.PrintErrf("query failed: %v\n", err)
			continue
		}
		printAgentReply(cmd, strings.TrimSpace(outcome.Final))
	}
	return scanner.Err()
}

func printAgentReply(cmd *cobra.Command, reply string) {
	if reply == "" {
		cmd.Println("agent> (no reply)")
		return
	}
	for index, line := range strings.Split(reply, "\n") {
		line = strings.TrimRight(line, "\r")
		if index == 0 {
			cmd.Printf("agent> %s\n", line)
			continue
		}
		cmd.Printf("      %s\n", line)
	}
}

func compactLine(input string, maxLen int) string {
	line := strings.Join(strings.Fields(strings.TrimSpace(input)), " ")
	if maxLen < 1 || len(line) <= maxLen {
		return line
	}
	return strings.TrimSpace(line[:maxLen]) + "..."
}
