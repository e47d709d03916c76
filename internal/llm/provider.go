// Package llm abstracts chat-completion providers behind a single Chat call
// operating on the block-based conversation model.
package llm

import (
	"context"

	"github.com/lectern-ai/lectern/internal/chat"
)

// Provider sends chat requests to an LLM backend.
type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// ToolDefinition describes a callable tool exposed to the model. Parameters
// is a JSON Schema object.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// TokenUsage reports provider token accounting for one response.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// Add accumulates another response's usage into u.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens += other.TotalTokens
}

// ChatRequest is the provider-agnostic request payload. A nil Tools slice
// means the model must answer without tool access.
type ChatRequest struct {
	SystemPrompt string
	Messages     []chat.Message
	Tools        []ToolDefinition
	MaxTokens    int
	Temperature  float64
}

// ChatResponse is the provider-agnostic response payload. Blocks preserve
// the model's emission order, including interleaved text and tool_use.
type ChatResponse struct {
	Blocks     []chat.Block
	StopReason string
	Usage      TokenUsage
}

// Message wraps the response blocks as an assistant chat message.
func (r *ChatResponse) Message() chat.Message {
	return chat.Message{Role: chat.RoleAssistant, Blocks: r.Blocks}
}

// HasToolUse reports whether the response requests any tool execution.
func (r *ChatResponse) HasToolUse() bool {
	for _, b := range r.Blocks {
		if _, ok := b.(chat.ToolUse); ok {
			return true
		}
	}
	return false
}
