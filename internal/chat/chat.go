// Package chat defines the provider-agnostic conversation model: messages
// composed of typed content blocks. Blocks form a closed union (text,
// tool_use, tool_result) discriminated by BlockType, which is also the JSON
// wire tag used for session persistence.
package chat

import "encoding/json"

// Role is the author role for a chat message.
type Role string

const (
	// RoleUser is a user-authored message.
	RoleUser Role = "user"
	// RoleAssistant is a model-authored message.
	RoleAssistant Role = "assistant"
	// RoleTool is the message answering an assistant tool turn. Providers map
	// it to their own wire form; Anthropic folds it into a user message.
	RoleTool Role = "tool"
)

// Block is one content element within a message.
type Block interface {
	// BlockType returns the wire discriminator: "text", "tool_use" or
	// "tool_result".
	BlockType() string
}

// Text is a plain text content block.
type Text struct {
	Text string
}

func (Text) BlockType() string { return "text" }

// ToolUse is a model request to execute a named tool. Input holds the raw
// JSON arguments so tools control their own decoding.
type ToolUse struct {
	ID    string
	Name  string
	Input json.RawMessage
}

func (ToolUse) BlockType() string { return "tool_use" }

// ToolResult is the outcome of one tool execution, paired to its request by
// ToolUseID. IsError marks failures the model should recover from rather
// than abort on.
type ToolResult struct {
	ToolUseID string
	Content   string
	IsError   bool
}

func (ToolResult) BlockType() string { return "tool_result" }

// Message is a single conversation turn: a role plus ordered content blocks.
type Message struct {
	Role   Role
	Blocks []Block
}

// UserText builds a user message holding one text block.
func UserText(text string) Message {
	return Message{Role: RoleUser, Blocks: []Block{Text{Text: text}}}
}

// AssistantText builds an assistant message holding one text block.
func AssistantText(text string) Message {
	return Message{Role: RoleAssistant, Blocks: []Block{Text{Text: text}}}
}

// ToolResults builds the tool-role message that answers an assistant tool
// turn. Result order must match the originating tool_use order.
func ToolResults(results ...ToolResult) Message {
	msg := Message{Role: RoleTool, Blocks: make([]Block, 0, len(results))}
	for _, res := range results {
		msg.Blocks = append(msg.Blocks, res)
	}
	return msg
}

// FirstText returns the first text block's content, or "" if the message
// carries none.
func (m Message) FirstText() string {
	for _, b := range m.Blocks {
		if t, ok := b.(Text); ok {
			return t.Text
		}
	}
	return ""
}

// ToolUses returns the tool_use blocks in order of appearance.
func (m Message) ToolUses() []ToolUse {
	var uses []ToolUse
	for _, b := range m.Blocks {
		if u, ok := b.(ToolUse); ok {
			uses = append(uses, u)
		}
	}
	return uses
}

// HasToolUse reports whether the message requests any tool execution.
func (m Message) HasToolUse() bool {
	for _, b := range m.Blocks {
		if _, ok := b.(ToolUse); ok {
			return true
		}
	}
	return false
}
