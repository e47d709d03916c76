// Package tools defines the Tool interface and Manager used by the
// generation loop, with an optional interface for tools that record the
// sources behind their answers.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lectern-ai/lectern/internal/chat"
	"github.com/lectern-ai/lectern/internal/llm"
)

var (
	// ErrDuplicateTool reports a second registration under the same name.
	ErrDuplicateTool = errors.New("tool already registered")
	// ErrUnknownTool reports a direct call to an unregistered tool.
	ErrUnknownTool = errors.New("unknown tool")
)

// Tool is the core executable action exposed to the LLM.
type Tool interface {
	Name() string
	Description() string
	Schema() map[string]any
	Execute(ctx context.Context, input json.RawMessage) (string, error)
}

// Source identifies a document behind a tool answer.
type Source struct {
	Title string `json:"title"`
	URL   string `json:"url,omitempty"`
}

// SourceRecorder is an optional interface for tools that track which
// documents their last execution drew from.
type SourceRecorder interface {
	LastSources() []Source
	ResetSources()
}

// Manager stores tools by unique name, preserving registration order for
// schema emission.
type Manager struct {
	byName map[string]Tool
	order  []string
}

// NewManager creates an empty tool manager.
func NewManager() *Manager {
	return &Manager{byName: make(map[string]Tool)}
}

// Register adds a tool by unique name.
func (m *Manager) Register(tool Tool) error {
	if tool == nil {
		return errors.New("tool cannot be nil")
	}
	name := tool.Name()
	if name == "" {
		return errors.New("tool name cannot be empty")
	}
	if _, exists := m.byName[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, name)
	}
	m.byName[name] = tool
	m.order = append(m.order, name)
	return nil
}

// Lookup returns a tool by name.
func (m *Manager) Lookup(name string) (Tool, bool) {
	tool, ok := m.byName[name]
	return tool, ok
}

// Tools returns all registered tools in registration order.
func (m *Manager) Tools() []Tool {
	out := make([]Tool, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.byName[name])
	}
	return out
}

// Definitions converts registered tools into LLM request tool definitions,
// in registration order.
func (m *Manager) Definitions() []llm.ToolDefinition {
	tools := m.Tools()
	defs := make([]llm.ToolDefinition, 0, len(tools))
	for _, tool := range tools {
		defs = append(defs, llm.ToolDefinition{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  tool.Schema(),
		})
	}
	return defs
}

// Execute runs the requested tool and folds every failure into an
// error-flagged result, so the model can recover instead of the generation
// aborting.
func (m *Manager) Execute(ctx context.Context, use chat.ToolUse) chat.ToolResult {
	tool, ok := m.Lookup(use.Name)
	if !ok {
		return chat.ToolResult{
			ToolUseID: use.ID,
			Content:   fmt.Sprintf("Tool '%s' not found", use.Name),
			IsError:   true,
		}
	}

	output, err := tool.Execute(ctx, use.Input)
	if err != nil {
		return chat.ToolResult{
			ToolUseID: use.ID,
			Content:   fmt.Sprintf("Error executing tool: %v", err),
			IsError:   true,
		}
	}
	return chat.ToolResult{ToolUseID: use.ID, Content: output}
}

// Call runs a tool directly, returning its raw output. Unlike Execute,
// failures surface as errors; MCP and diagnostics use this path.
func (m *Manager) Call(ctx context.Context, name string, input json.RawMessage) (string, error) {
	tool, ok := m.Lookup(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return tool.Execute(ctx, input)
}

// LastSources collects sources from all recording tools, in registration
// order.
func (m *Manager) LastSources() []Source {
	var sources []Source
	for _, tool := range m.Tools() {
		if rec, ok := tool.(SourceRecorder); ok {
			sources = append(sources, rec.LastSources()...)
		}
	}
	return sources
}

// ResetSources clears recorded sources on all recording tools.
func (m *Manager) ResetSources() {
	for _, tool := range m.Tools() {
		if rec, ok := tool.(SourceRecorder); ok {
			rec.ResetSources()
		}
	}
}
