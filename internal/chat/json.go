package chat

import (
	"encoding/json"
	"fmt"
)

// blockEnvelope is the flat wire form shared by all block types. Type selects
// which fields are meaningful.
type blockEnvelope struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

type messageEnvelope struct {
	Role    Role            `json:"role"`
	Content []blockEnvelope `json:"content"`
}

// MarshalJSON encodes the message with a "type" discriminator per block.
func (m Message) MarshalJSON() ([]byte, error) {
	env := messageEnvelope{Role: m.Role, Content: make([]blockEnvelope, 0, len(m.Blocks))}
	for _, b := range m.Blocks {
		switch blk := b.(type) {
		case Text:
			env.Content = append(env.Content, blockEnvelope{Type: blk.BlockType(), Text: blk.Text})
		case ToolUse:
			env.Content = append(env.Content, blockEnvelope{Type: blk.BlockType(), ID: blk.ID, Name: blk.Name, Input: blk.Input})
		case ToolResult:
			env.Content = append(env.Content, blockEnvelope{Type: blk.BlockType(), ToolUseID: blk.ToolUseID, Content: blk.Content, IsError: blk.IsError})
		default:
			return nil, fmt.Errorf("marshal chat message: unsupported block type %T", b)
		}
	}
	return json.Marshal(env)
}

// UnmarshalJSON decodes the discriminated block list. Blocks with an
// unrecognized type tag are dropped so old sessions survive format growth.
func (m *Message) UnmarshalJSON(data []byte) error {
	var env messageEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	msg := Message{Role: env.Role, Blocks: make([]Block, 0, len(env.Content))}
	for _, blk := range env.Content {
		switch blk.Type {
		case "text":
			msg.Blocks = append(msg.Blocks, Text{Text: blk.Text})
		case "tool_use":
			msg.Blocks = append(msg.Blocks, ToolUse{ID: blk.ID, Name: blk.Name, Input: blk.Input})
		case "tool_result":
			msg.Blocks = append(msg.Blocks, ToolResult{ToolUseID: blk.ToolUseID, Content: blk.Content, IsError: blk.IsError})
		}
	}
	*m = msg
	return nil
}
