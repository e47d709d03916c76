package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/lectern-ai/lectern/internal/catalog"
	"github.com/lectern-ai/lectern/internal/tools"
)

func TestListToolsMirrorsManager(t *testing.T) {
	session := newTestSession(t)

	result, err := session.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatalf("list tools: %v", err)
	}
	if len(result.Tools) != 2 {
		t.Fatalf("expected 2 tools, got %d", len(result.Tools))
	}

	byName := make(map[string]*mcp.Tool, len(result.Tools))
	for _, tool := range result.Tools {
		byName[tool.Name] = tool
	}
	search, ok := byName["search_course_content"]
	if !ok {
		t.Fatalf("search tool missing from listing: %#v", byName)
	}
	if !strings.Contains(search.Description, "Search course materials") {
		t.Fatalf("unexpected search description %q", search.Description)
	}
	if _, ok := byName["get_course_outline"]; !ok {
		t.Fatalf("outline tool missing from listing: %#v", byName)
	}
}

func TestCallToolReturnsSearchResults(t *testing.T) {
	session := newTestSession(t)

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "search_course_content",
		Arguments: map[string]any{"query": "retrieval"},
	})
	if err != nil {
		t.Fatalf("call tool: %v", err)
	}
	if result.IsError {
		t.Fatalf("expected success, got error result %#v", result.Content)
	}
	text := textContent(t, result)
	if !strings.Contains(text, "[MCP: Build Rich-Context AI Apps with Anthropic - Lesson 3]") {
		t.Fatalf("expected bracketed context header, got %q", text)
	}
	if !strings.Contains(text, "Retrieval systems embed documents") {
		t.Fatalf("expected chunk content, got %q", text)
	}
}

func TestCallToolEmptyResultIsAnswerNotError(t *testing.T) {
	session := newTestSession(t)

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "search_course_content",
		Arguments: map[string]any{"query": "zebra holograms"},
	})
	if err != nil {
		t.Fatalf("call tool: %v", err)
	}
	if result.IsError {
		t.Fatalf("an empty result set is an answer, got error result")
	}
	if text := textContent(t, result); !strings.Contains(text, "No relevant content found") {
		t.Fatalf("unexpected empty-search text %q", text)
	}
}

func TestCallToolFailureSetsIsError(t *testing.T) {
	session := newTestSession(t, &failingTool{})

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "always_fails",
		Arguments: map[string]any{},
	})
	if err != nil {
		t.Fatalf("call tool: %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected error-flagged result")
	}
	if text := textContent(t, result); text != "catalog offline" {
		t.Fatalf("expected tool error text, got %q", text)
	}
}

func TestCallToolUnknownToolIsProtocolError(t *testing.T) {
	session := newTestSession(t)

	_, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "missing_tool",
		Arguments: map[string]any{},
	})
	if err == nil {
		t.Fatalf("expected protocol error for unregistered tool")
	}
	if !strings.Contains(err.Error(), "missing_tool") {
		t.Fatalf("expected the tool name in the error, got %v", err)
	}
}

func TestServeStopsOnContextCancel(t *testing.T) {
	srv := New(tools.NewManager(), "test")
	serverTransport, _ := mcp.NewInMemoryTransports()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := srv.serve(ctx, serverTransport); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

// newTestSession starts the MCP server over in-memory transports against a
// seeded catalog and returns a connected client session.
func newTestSession(t *testing.T, extra ...tools.Tool) *mcp.ClientSession {
	t.Helper()
	dir := t.TempDir()

	store, err := catalog.Open(filepath.Join(dir, "catalog.db"))
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	course := catalog.Course{
		Title: "MCP: Build Rich-Context AI Apps with Anthropic",
		Link:  "https://example.com/mcp",
		Lessons: []catalog.Lesson{
			{Number: 3, Title: "Chroma and Retrieval", Link: "https://example.com/mcp/lesson/3"},
		},
	}
	if err := store.UpsertCourse(ctx, course); err != nil {
		t.Fatalf("seed course: %v", err)
	}
	chunks := []catalog.Chunk{
		{CourseTitle: course.Title, LessonNumber: 3, Index: 0, Content: "Retrieval systems embed documents into vectors for semantic search."},
	}
	if err := store.ReplaceChunks(ctx, course.Title, chunks); err != nil {
		t.Fatalf("seed chunks: %v", err)
	}

	manager := tools.NewManager()
	if err := manager.Register(tools.NewCourseSearchTool(store, 5)); err != nil {
		t.Fatalf("register search tool: %v", err)
	}
	if err := manager.Register(tools.NewCourseOutlineTool(store)); err != nil {
		t.Fatalf("register outline tool: %v", err)
	}
	for _, tool := range extra {
		if err := manager.Register(tool); err != nil {
			t.Fatalf("register extra tool: %v", err)
		}
	}

	srv := New(manager, "test")
	serverTransport, clientTransport := mcp.NewInMemoryTransports()

	runCtx, cancel := context.WithCancel(context.Background())
	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.serve(runCtx, serverTransport)
	}()
	t.Cleanup(func() {
		cancel()
		<-serverDone
	})

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "0.0.1"}, nil)
	session, err := client.Connect(runCtx, clientTransport, nil)
	if err != nil {
		t.Fatalf("connect client: %v", err)
	}
	t.Cleanup(func() { session.Close() })

	return session
}

func textContent(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) != 1 {
		t.Fatalf("expected one content block, got %#v", result.Content)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", result.Content[0])
	}
	return tc.Text
}

// failingTool exercises the error-result path.
type failingTool struct{}

func (f *failingTool) Name() string        { return "always_fails" }
func (f *failingTool) Description() string { return "Fails on every call" }
func (f *failingTool) Schema() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}
func (f *failingTool) Execute(context.Context, json.RawMessage) (string, error) {
	return "", errors.New("catalog offline")
}
