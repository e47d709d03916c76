package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/lectern-ai/lectern/internal/chat"
	"github.com/lectern-ai/lectern/internal/llm"
)

func createTestHome(t *testing.T) string {
	t.Helper()
	homeDir := filepath.Join(t.TempDir(), ".lectern")
	t.Setenv("LECTERN_HOME", homeDir)
	return homeDir
}

func writeValidConfig(t *testing.T, homeDir string) {
	t.Helper()
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home dir: %v", err)
	}
	configBody := `
[llm.default]
api_key = "test-key"
provider = "anthropic"
model = "claude-sonnet-4-20250514"

[server]
addr = "127.0.0.1:0"
`
	if err := os.WriteFile(filepath.Join(homeDir, "config.toml"), []byte(configBody), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

type fakeProvider struct {
	resp *llm.ChatResponse
	err  error
}

func (p fakeProvider) Chat(_ context.Context, _ llm.ChatRequest) (*llm.ChatResponse, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.resp, nil
}

func textResponse(text string) *llm.ChatResponse {
	return &llm.ChatResponse{
		Blocks:     []chat.Block{chat.Text{Text: text}},
		StopReason: "end_turn",
		Usage:      llm.TokenUsage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15},
	}
}
