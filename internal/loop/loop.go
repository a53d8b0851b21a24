// Package loop drives the perceive-act cycle: hand the conversation to the
// model, execute every invocation it requests, append the paired results,
// and repeat until a model turn arrives with no requests.
package loop

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/partsline/scm-agent/internal/agenterr"
	"github.com/partsline/scm-agent/internal/llm"
)

// Invoker executes one named capability invocation.
type Invoker interface {
	Invoke(ctx context.Context, name string, args map[string]any) (string, error)
}

// Hooks observe loop progress. Nil fields are skipped.
type Hooks struct {
	OnModelTurn  func(msg llm.Message, usage llm.Usage)
	OnInvocation func(call llm.ToolCall, result string, err error)
}

// Outcome is the terminal state of one conversation run. Messages holds
// the full transcript including every invocation request and its paired
// result.
type Outcome struct {
	Final    string
	Messages []llm.Message
	Usage    llm.Usage
	Turns    int
}

type Loop struct {
	completer llm.Completer
	invoker   Invoker
	tools     []llm.ToolDefinition
	maxTurns  int
	hooks     Hooks
	logger    *slog.Logger
}

type Options struct {
	// MaxTurns bounds the number of model turns. Zero means unbounded:
	// the budget belongs to the caller, not the cycle itself.
	MaxTurns int
	Hooks    Hooks
	Logger   *slog.Logger
}

func New(completer llm.Completer, invoker Invoker, tools []llm.ToolDefinition, opts Options) *Loop {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		completer: completer,
		invoker:   invoker,
		tools:     tools,
		maxTurns:  opts.MaxTurns,
		hooks:     opts.Hooks,
		logger:    logger.With("component", "loop"),
	}
}

// Run executes one conversation to completion. The seed messages are not
// mutated; the outcome carries the full transcript. Per-invocation
// failures, transport included, are absorbed as failed result turns so
// the model can react; model-turn failures and an exhausted turn budget
// unwind with the partial outcome.
func (l *Loop) Run(ctx context.Context, seed []llm.Message) (Outcome, error) {
	messages := append([]llm.Message(nil), seed...)
	outcome := Outcome{Messages: messages}

	for {
		if l.maxTurns > 0 && outcome.Turns >= l.maxTurns {
			outcome.Messages = messages
			return outcome, fmt.Errorf("%w: after %d turns", agenterr.ErrTurnBudget, outcome.Turns)
		}

		resp, err := l.completer.Complete(ctx, messages, l.tools)
		if err != nil {
			outcome.Messages = messages
			return outcome, fmt.Errorf("model turn %d: %w", outcome.Turns+1, err)
		}
		outcome.Turns++
		outcome.Usage.Add(resp.Usage)

		msg := resp.Message
		msg.Role = llm.RoleAssistant
		assignCallIDs(msg.ToolCalls)
		messages = append(messages, msg)
		if l.hooks.OnModelTurn != nil {
			l.hooks.OnModelTurn(msg, resp.Usage)
		}

		if len(msg.ToolCalls) == 0 {
			outcome.Final = msg.Content
			outcome.Messages = messages
			l.logger.Debug("conversation terminated", "turns", outcome.Turns, "tokens", outcome.Usage.TotalTokens)
			return outcome, nil
		}

		for _, call := range msg.ToolCalls {
			text, err := l.execute(ctx, call)
			if err != nil && agenterr.IsFatal(err) {
				outcome.Messages = messages
				return outcome, err
			}
			if err != nil {
				l.logger.Debug("invocation failed", "capability", call.Name, "error", err)
				if text == "" {
					text = err.Error()
				}
			}
			messages = append(messages, llm.Message{
				Role:       llm.RoleTool,
				Content:    text,
				ToolCallID: call.ID,
				Name:       call.Name,
			})
			if l.hooks.OnInvocation != nil {
				l.hooks.OnInvocation(call, text, err)
			}
		}
	}
}

func (l *Loop) execute(ctx context.Context, call llm.ToolCall) (string, error) {
	args, err := decodeArguments(call.Arguments)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", agenterr.ErrTool, call.Name, err)
	}
	return l.invoker.Invoke(ctx, call.Name, args)
}

// assignCallIDs fills in identifiers for requests the model left unnamed,
// so every result turn can be paired with its request.
func assignCallIDs(calls []llm.ToolCall) {
	for i := range calls {
		if strings.TrimSpace(calls[i].ID) == "" {
			calls[i].ID = "call_" + uuid.NewString()
		}
	}
}

func decodeArguments(raw string) (map[string]any, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(trimmed), &args); err != nil {
		return nil, fmt.Errorf("malformed arguments: %v", err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}
