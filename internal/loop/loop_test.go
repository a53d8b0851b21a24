package loop

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/partsline/scm-agent/internal/agenterr"
	"github.com/partsline/scm-agent/internal/llm"
)

// scriptedCompleter replays a fixed sequence of responses and records the
// conversation it was shown at each turn.
type scriptedCompleter struct {
	responses []llm.Response
	seen      [][]llm.Message
	err       error
}

func (s *scriptedCompleter) Complete(_ context.Context, messages []llm.Message, _ []llm.ToolDefinition) (llm.Response, error) {
	if s.err != nil {
		return llm.Response{}, s.err
	}
	s.seen = append(s.seen, append([]llm.Message(nil), messages...))
	if len(s.seen) > len(s.responses) {
		return llm.Response{}, fmt.Errorf("no scripted response for turn %d", len(s.seen))
	}
	return s.responses[len(s.seen)-1], nil
}

type mapInvoker map[string]func(args map[string]any) (string, error)

func (m mapInvoker) Invoke(_ context.Context, name string, args map[string]any) (string, error) {
	fn, ok := m[name]
	if !ok {
		return "", agenterr.Unknown(name)
	}
	return fn(args)
}

func seed(query string) []llm.Message {
	return []llm.Message{
		{Role: llm.RoleSystem, Content: "system prompt"},
		{Role: llm.RoleUser, Content: query},
	}
}

func TestRunImmediateFinal(t *testing.T) {
	completer := &scriptedCompleter{responses: []llm.Response{
		{Message: llm.Message{Content: "I cannot help with that."}, Usage: llm.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}},
	}}
	l := New(completer, mapInvoker{}, nil, Options{MaxTurns: 25})

	outcome, err := l.Run(context.Background(), seed("What is the weather?"))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if outcome.Final != "I cannot help with that." {
		t.Fatalf("final = %q", outcome.Final)
	}
	if outcome.Turns != 1 {
		t.Fatalf("turns = %d", outcome.Turns)
	}
	if len(outcome.Messages) != 3 {
		t.Fatalf("messages = %d", len(outcome.Messages))
	}
	if outcome.Usage.TotalTokens != 15 {
		t.Fatalf("usage = %+v", outcome.Usage)
	}
}

func TestRunExecutesAndPairsResults(t *testing.T) {
	completer := &scriptedCompleter{responses: []llm.Response{
		{Message: llm.Message{ToolCalls: []llm.ToolCall{
			{ID: "c1", Name: "check_stock", Arguments: `{"part_id":"ID-100"}`},
			{ID: "c2", Name: "check_stock", Arguments: `{"part_id":"ID-999"}`},
		}}, Usage: llm.Usage{TotalTokens: 30}},
		{Message: llm.Message{Content: "5 units in stock."}, Usage: llm.Usage{TotalTokens: 20}},
	}}
	invoker := mapInvoker{
		"check_stock": func(args map[string]any) (string, error) {
			if args["part_id"] == "ID-100" {
				return "Stock for ID-100: 5 units.", nil
			}
			return "Error: Unknown Part ID 'ID-999'.", agenterr.Tool("check_stock", "unknown id")
		},
	}
	l := New(completer, invoker, nil, Options{MaxTurns: 25})

	outcome, err := l.Run(context.Background(), seed("Stock of Engine and ID-999?"))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if outcome.Final != "5 units in stock." {
		t.Fatalf("final = %q", outcome.Final)
	}

	// seed(2) + assistant + two results + assistant
	if len(outcome.Messages) != 6 {
		t.Fatalf("messages = %d", len(outcome.Messages))
	}
	first, second := outcome.Messages[3], outcome.Messages[4]
	if first.Role != llm.RoleTool || first.ToolCallID != "c1" {
		t.Fatalf("first result = %+v", first)
	}
	if second.ToolCallID != "c2" || second.Content != "Error: Unknown Part ID 'ID-999'." {
		t.Fatalf("second result = %+v", second)
	}

	// The second model turn must have seen both result turns.
	lastSeen := completer.seen[1]
	if len(lastSeen) != 5 {
		t.Fatalf("model saw %d messages", len(lastSeen))
	}
	if outcome.Usage.TotalTokens != 50 {
		t.Fatalf("usage = %+v", outcome.Usage)
	}
}

func TestRunAssignsMissingCallIDs(t *testing.T) {
	completer := &scriptedCompleter{responses: []llm.Response{
		{Message: llm.Message{ToolCalls: []llm.ToolCall{{Name: "check_stock", Arguments: `{"part_id":"ID-100"}`}}}},
		{Message: llm.Message{Content: "done"}},
	}}
	invoker := mapInvoker{
		"check_stock": func(map[string]any) (string, error) { return "ok", nil },
	}
	l := New(completer, invoker, nil, Options{MaxTurns: 25})

	outcome, err := l.Run(context.Background(), seed("stock?"))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	request := outcome.Messages[2].ToolCalls[0]
	result := outcome.Messages[3]
	if request.ID == "" {
		t.Fatal("request id not assigned")
	}
	if result.ToolCallID != request.ID {
		t.Fatalf("result id %q != request id %q", result.ToolCallID, request.ID)
	}
}

func TestRunAbsorbsUnknownCapability(t *testing.T) {
	completer := &scriptedCompleter{responses: []llm.Response{
		{Message: llm.Message{ToolCalls: []llm.ToolCall{{ID: "c1", Name: "teleport_part", Arguments: `{}`}}}},
		{Message: llm.Message{Content: "That tool does not exist."}},
	}}
	l := New(completer, mapInvoker{}, nil, Options{MaxTurns: 25})

	outcome, err := l.Run(context.Background(), seed("teleport it"))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	result := outcome.Messages[3]
	if result.Role != llm.RoleTool || result.Content == "" {
		t.Fatalf("result = %+v", result)
	}
}

func TestRunAbsorbsMalformedArguments(t *testing.T) {
	completer := &scriptedCompleter{responses: []llm.Response{
		{Message: llm.Message{ToolCalls: []llm.ToolCall{{ID: "c1", Name: "check_stock", Arguments: `{"part_id":`}}}},
		{Message: llm.Message{Content: "Let me try again."}},
	}}
	invoked := false
	invoker := mapInvoker{
		"check_stock": func(map[string]any) (string, error) { invoked = true; return "ok", nil },
	}
	l := New(completer, invoker, nil, Options{MaxTurns: 25})

	outcome, err := l.Run(context.Background(), seed("stock?"))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if invoked {
		t.Fatal("malformed arguments must not reach the invoker")
	}
	if outcome.Messages[3].ToolCallID != "c1" {
		t.Fatalf("result = %+v", outcome.Messages[3])
	}
}

func TestRunAbsorbsTransportFailure(t *testing.T) {
	completer := &scriptedCompleter{responses: []llm.Response{
		{Message: llm.Message{ToolCalls: []llm.ToolCall{
			{ID: "c1", Name: "find_part_id", Arguments: `{"part_name":"Engine"}`},
			{ID: "c2", Name: "check_stock", Arguments: `{"part_id":"ID-100"}`},
		}}},
		{Message: llm.Message{Content: "5 units in stock."}},
	}}
	invoker := mapInvoker{
		"find_part_id": func(map[string]any) (string, error) {
			return "", agenterr.Transport("find_part_id", errors.New("broken pipe"))
		},
		"check_stock": func(map[string]any) (string, error) {
			return "Stock for ID-100: 5 units.", nil
		},
	}
	l := New(completer, invoker, nil, Options{MaxTurns: 25})

	outcome, err := l.Run(context.Background(), seed("Stock of Engine?"))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if outcome.Final != "5 units in stock." {
		t.Fatalf("final = %q", outcome.Final)
	}

	// Both result turns must be present: the failed one as text the
	// model can react to, the sibling executed normally.
	first, second := outcome.Messages[3], outcome.Messages[4]
	if first.Role != llm.RoleTool || first.ToolCallID != "c1" {
		t.Fatalf("first result = %+v", first)
	}
	if !strings.Contains(first.Content, "broken pipe") {
		t.Fatalf("first content = %q", first.Content)
	}
	if second.ToolCallID != "c2" || second.Content != "Stock for ID-100: 5 units." {
		t.Fatalf("second result = %+v", second)
	}
	if len(completer.seen) != 2 {
		t.Fatalf("model turns = %d", len(completer.seen))
	}
}

func TestRunTurnBudget(t *testing.T) {
	loopForever := llm.Response{Message: llm.Message{ToolCalls: []llm.ToolCall{{ID: "c1", Name: "check_stock", Arguments: `{}`}}}}
	completer := &scriptedCompleter{responses: []llm.Response{loopForever, loopForever, loopForever}}
	invoker := mapInvoker{
		"check_stock": func(map[string]any) (string, error) { return "ok", nil },
	}
	l := New(completer, invoker, nil, Options{MaxTurns: 3})

	outcome, err := l.Run(context.Background(), seed("stock?"))
	if !errors.Is(err, agenterr.ErrTurnBudget) {
		t.Fatalf("expected budget error, got %v", err)
	}
	if outcome.Turns != 3 {
		t.Fatalf("turns = %d", outcome.Turns)
	}
}

func TestRunHooks(t *testing.T) {
	completer := &scriptedCompleter{responses: []llm.Response{
		{Message: llm.Message{ToolCalls: []llm.ToolCall{{ID: "c1", Name: "check_stock", Arguments: `{"part_id":"ID-100"}`}}}},
		{Message: llm.Message{Content: "done"}},
	}}
	invoker := mapInvoker{
		"check_stock": func(map[string]any) (string, error) { return "ok", nil },
	}
	var modelTurns, invocations int
	l := New(completer, invoker, nil, Options{
		MaxTurns: 25,
		Hooks: Hooks{
			OnModelTurn:  func(llm.Message, llm.Usage) { modelTurns++ },
			OnInvocation: func(call llm.ToolCall, result string, err error) { invocations++ },
		},
	})

	if _, err := l.Run(context.Background(), seed("stock?")); err != nil {
		t.Fatalf("run: %v", err)
	}
	if modelTurns != 2 || invocations != 1 {
		t.Fatalf("hooks: model turns %d, invocations %d", modelTurns, invocations)
	}
}
