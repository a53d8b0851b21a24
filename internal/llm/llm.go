// Package llm defines the provider-agnostic surface for model turns. The
// control loop speaks these types; provider packages adapt them to wire
// formats.
package llm

import (
	"context"
	"encoding/json"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one turn of a conversation in provider-neutral form. Tool
// result messages carry the ToolCallID of the request they answer.
type Message struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
	Name       string
}

// ToolCall is a model-requested capability invocation. Arguments is the
// raw JSON argument object exactly as the model produced it.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// ToolDefinition declares one callable capability to the model.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// Usage is the token accounting for one completion.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Add accumulates another completion's usage.
func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// Response is the model's reply to one completion request.
type Response struct {
	Message Message
	Usage   Usage
}

// Completer produces one model turn from a conversation and the declared
// capability set.
type Completer interface {
	Complete(ctx context.Context, messages []Message, tools []ToolDefinition) (Response, error)
}
