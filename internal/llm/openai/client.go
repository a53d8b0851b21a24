// Package openai adapts the provider-neutral completion surface to any
// OpenAI-compatible chat endpoint, including a local Ollama at /v1.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	sdk "github.com/sashabaranov/go-openai"

	"github.com/partsline/scm-agent/internal/llm"
)

type Client struct {
	api   *sdk.Client
	model string
}

// New builds a client. An empty apiKey is accepted: local endpoints do not
// check it.
func New(baseURL, apiKey, model string, timeout time.Duration) *Client {
	if strings.TrimSpace(apiKey) == "" {
		apiKey = "unused"
	}
	cfg := sdk.DefaultConfig(apiKey)
	if strings.TrimSpace(baseURL) != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	return &Client{api: sdk.NewClientWithConfig(cfg), model: model}
}

func (c *Client) Complete(ctx context.Context, messages []llm.Message, tools []llm.ToolDefinition) (llm.Response, error) {
	req := sdk.ChatCompletionRequest{
		Model:    c.model,
		Messages: toWire(messages),
	}
	for _, tool := range tools {
		req.Tools = append(req.Tools, sdk.Tool{
			Type: sdk.ToolTypeFunction,
			Function: &sdk.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  json.RawMessage(tool.Parameters),
			},
		})
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return llm.Response{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return llm.Response{}, fmt.Errorf("chat completion: no choices in response")
	}

	return llm.Response{
		Message: fromWire(resp.Choices[0].Message),
		Usage: llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

func toWire(messages []llm.Message) []sdk.ChatCompletionMessage {
	wire := make([]sdk.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		entry := sdk.ChatCompletionMessage{
			Role:       msg.Role,
			Content:    msg.Content,
			Name:       msg.Name,
			ToolCallID: msg.ToolCallID,
		}
		for _, call := range msg.ToolCalls {
			entry.ToolCalls = append(entry.ToolCalls, sdk.ToolCall{
				ID:   call.ID,
				Type: sdk.ToolTypeFunction,
				Function: sdk.FunctionCall{
					Name:      call.Name,
					Arguments: call.Arguments,
				},
			})
		}
		wire = append(wire, entry)
	}
	return wire
}

func fromWire(msg sdk.ChatCompletionMessage) llm.Message {
	out := llm.Message{
		Role:    msg.Role,
		Content: msg.Content,
	}
	for _, call := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		})
	}
	return out
}
