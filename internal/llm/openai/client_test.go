package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/partsline/scm-agent/internal/llm"
)

func TestCompleteRoundTrip(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"choices": [{
				"message": {
					"role": "assistant",
					"content": "",
					"tool_calls": [{
						"id": "call_abc",
						"type": "function",
						"function": {"name": "find_part_id", "arguments": "{\"part_name\":\"Engine\"}"}
					}]
				},
				"finish_reason": "tool_calls"
			}],
			"usage": {"prompt_tokens": 40, "completion_tokens": 12, "total_tokens": 52}
		}`))
	}))
	defer server.Close()

	client := New(server.URL, "", "test-model", 5*time.Second)
	resp, err := client.Complete(context.Background(),
		[]llm.Message{
			{Role: llm.RoleSystem, Content: "You are a helpful assistant."},
			{Role: llm.RoleUser, Content: "Find the Engine part id."},
		},
		[]llm.ToolDefinition{{
			Name:        "find_part_id",
			Description: "Finds the internal Part ID for a part name.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"part_name":{"type":"string"}},"required":["part_name"]}`),
		}},
	)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}

	if captured["model"] != "test-model" {
		t.Fatalf("model = %v", captured["model"])
	}
	tools, ok := captured["tools"].([]any)
	if !ok || len(tools) != 1 {
		t.Fatalf("tools = %v", captured["tools"])
	}

	if len(resp.Message.ToolCalls) != 1 {
		t.Fatalf("tool calls = %v", resp.Message.ToolCalls)
	}
	call := resp.Message.ToolCalls[0]
	if call.ID != "call_abc" || call.Name != "find_part_id" {
		t.Fatalf("tool call = %+v", call)
	}
	if resp.Usage.TotalTokens != 52 {
		t.Fatalf("usage = %+v", resp.Usage)
	}
}

func TestCompleteSendsToolResults(t *testing.T) {
	var captured struct {
		Messages []map[string]any `json:"messages"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"choices": [{"message": {"role": "assistant", "content": "ID-100"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 60, "completion_tokens": 5, "total_tokens": 65}
		}`))
	}))
	defer server.Close()

	client := New(server.URL, "", "test-model", 5*time.Second)
	resp, err := client.Complete(context.Background(),
		[]llm.Message{
			{Role: llm.RoleUser, Content: "Find the Engine part id."},
			{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{
				ID: "call_abc", Name: "find_part_id", Arguments: `{"part_name":"Engine"}`,
			}}},
			{Role: llm.RoleTool, ToolCallID: "call_abc", Name: "find_part_id", Content: "ID-100"},
		},
		nil,
	)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if resp.Message.Content != "ID-100" {
		t.Fatalf("content = %q", resp.Message.Content)
	}

	if len(captured.Messages) != 3 {
		t.Fatalf("messages = %d", len(captured.Messages))
	}
	toolMsg := captured.Messages[2]
	if toolMsg["role"] != "tool" || toolMsg["tool_call_id"] != "call_abc" {
		t.Fatalf("tool message = %v", toolMsg)
	}
}

func TestCompleteRejectsEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices": [], "usage": {}}`))
	}))
	defer server.Close()

	client := New(server.URL, "", "test-model", 5*time.Second)
	_, err := client.Complete(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "hi"}}, nil)
	if err == nil {
		t.Fatal("expected error for empty choices")
	}
}
