package channels

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lectern-ai/lectern/internal/agent"
	"github.com/lectern-ai/lectern/internal/catalog"
	"github.com/lectern-ai/lectern/internal/chat"
	"github.com/lectern-ai/lectern/internal/llm"
	"github.com/lectern-ai/lectern/internal/rag"
	"github.com/lectern-ai/lectern/internal/runtime"
	"github.com/lectern-ai/lectern/internal/session"
	"github.com/lectern-ai/lectern/internal/tools"
	"github.com/lectern-ai/lectern/internal/usage"
)

func TestQueryHandlerAnswersWithSources(t *testing.T) {
	rig := newHandlerRig(t, 0,
		toolUseResponse("toolu_1", "search_course_content", `{"query":"retrieval"}`),
		textResponse("Lesson 3 covers retrieval."),
	)
	writer := &recordingWriter{}

	err := rig.handler.HandleMessage(context.Background(), writer, &runtime.Message{
		Text:       "What does lesson 3 cover?",
		SessionKey: "default",
	})
	if err != nil {
		t.Fatalf("handle message: %v", err)
	}

	if len(writer.messages) != 1 {
		t.Fatalf("expected one reply, got %#v", writer.messages)
	}
	reply := writer.messages[0]
	if !strings.HasPrefix(reply, "Lesson 3 covers retrieval.") {
		t.Fatalf("expected answer text first, got %q", reply)
	}
	if !strings.Contains(reply, "Sources:") {
		t.Fatalf("expected a sources block, got %q", reply)
	}
	if !strings.Contains(reply, "MCP: Build Rich-Context AI Apps with Anthropic - Lesson 3 (https://example.com/mcp/lesson/3)") {
		t.Fatalf("expected source line with link, got %q", reply)
	}
}

func TestQueryHandlerPlainAnswerHasNoSourcesBlock(t *testing.T) {
	rig := newHandlerRig(t, 0, textResponse("Go is a programming language."))
	writer := &recordingWriter{}

	err := rig.handler.HandleMessage(context.Background(), writer, &runtime.Message{
		Text:       "What is Go?",
		SessionKey: "default",
	})
	if err != nil {
		t.Fatalf("handle message: %v", err)
	}
	if len(writer.messages) != 1 || writer.messages[0] != "Go is a programming language." {
		t.Fatalf("unexpected reply %#v", writer.messages)
	}
}

func TestQueryHandlerContinuesSessionAcrossMessages(t *testing.T) {
	rig := newHandlerRig(t, 0,
		textResponse("It is four."),
		textResponse("As I said, four."),
	)
	writer := &recordingWriter{}
	ctx := context.Background()

	if err := rig.handler.HandleMessage(ctx, writer, &runtime.Message{Text: "What is 2+2?", SessionKey: "default"}); err != nil {
		t.Fatalf("first message: %v", err)
	}
	if err := rig.handler.HandleMessage(ctx, writer, &runtime.Message{Text: "Repeat that.", SessionKey: "default"}); err != nil {
		t.Fatalf("second message: %v", err)
	}

	if len(rig.provider.requests) != 2 {
		t.Fatalf("expected 2 provider calls, got %d", len(rig.provider.requests))
	}
	second := rig.provider.requests[1].Messages
	if len(second) != 3 {
		t.Fatalf("expected earlier exchange replayed before new query, got %d messages", len(second))
	}
}

func TestQueryHandlerNewCommandResetsSession(t *testing.T) {
	rig := newHandlerRig(t, 0,
		textResponse("It is four."),
		textResponse("Fresh answer."),
	)
	writer := &recordingWriter{}
	ctx := context.Background()

	if err := rig.handler.HandleMessage(ctx, writer, &runtime.Message{Text: "What is 2+2?", SessionKey: "default"}); err != nil {
		t.Fatalf("first message: %v", err)
	}
	if err := rig.handler.HandleMessage(ctx, writer, &runtime.Message{Text: "/new", SessionKey: "default"}); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if err := rig.handler.HandleMessage(ctx, writer, &runtime.Message{Text: "And now?", SessionKey: "default"}); err != nil {
		t.Fatalf("message after reset: %v", err)
	}

	if len(writer.messages) != 3 || writer.messages[1] != resetReply {
		t.Fatalf("expected reset confirmation, got %#v", writer.messages)
	}
	last := rig.provider.requests[len(rig.provider.requests)-1].Messages
	if len(last) != 1 {
		t.Fatalf("expected no history after reset, got %d messages", len(last))
	}
}

func TestQueryHandlerStartCommandSendsWelcome(t *testing.T) {
	rig := newHandlerRig(t, 0)
	writer := &recordingWriter{}

	err := rig.handler.HandleMessage(context.Background(), writer, &runtime.Message{Text: "/start", SessionKey: "42"})
	if err != nil {
		t.Fatalf("handle message: %v", err)
	}
	if len(writer.messages) != 1 || writer.messages[0] != welcomeReply {
		t.Fatalf("expected welcome reply, got %#v", writer.messages)
	}
	if len(rig.provider.requests) != 0 {
		t.Fatalf("expected no provider calls for /start, got %d", len(rig.provider.requests))
	}
}

func TestQueryHandlerEmptyMessageIgnored(t *testing.T) {
	rig := newHandlerRig(t, 0)
	writer := &recordingWriter{}

	err := rig.handler.HandleMessage(context.Background(), writer, &runtime.Message{Text: "   ", SessionKey: "42"})
	if err != nil {
		t.Fatalf("handle message: %v", err)
	}
	if len(writer.messages) != 0 {
		t.Fatalf("expected no replies, got %#v", writer.messages)
	}
	if len(rig.provider.requests) != 0 {
		t.Fatalf("expected no provider calls, got %d", len(rig.provider.requests))
	}
}

func TestQueryHandlerDailyLimitProducesFriendlyReply(t *testing.T) {
	rig := newHandlerRig(t, 100)
	if err := rig.tracker.Append(context.Background(), usage.Record{TotalTokens: 150}); err != nil {
		t.Fatalf("seed usage: %v", err)
	}
	writer := &recordingWriter{}

	err := rig.handler.HandleMessage(context.Background(), writer, &runtime.Message{Text: "hello", SessionKey: "default"})
	if err != nil {
		t.Fatalf("expected the limit to be answered, not returned: %v", err)
	}
	if len(writer.messages) != 1 || writer.messages[0] != limitReply {
		t.Fatalf("expected limit reply, got %#v", writer.messages)
	}
	if len(rig.provider.requests) != 0 {
		t.Fatalf("expected no provider calls over the limit, got %d", len(rig.provider.requests))
	}
}

func TestQueryHandlerProviderErrorPropagates(t *testing.T) {
	rig := newHandlerRig(t, 0)
	rig.provider.err = errors.New("quota exhausted")
	writer := &recordingWriter{}

	err := rig.handler.HandleMessage(context.Background(), writer, &runtime.Message{Text: "hello", SessionKey: "default"})
	if err == nil || !strings.Contains(err.Error(), "quota exhausted") {
		t.Fatalf("expected provider error to propagate, got %v", err)
	}
	if len(writer.messages) != 0 {
		t.Fatalf("expected the dispatcher to own the failure reply, got %#v", writer.messages)
	}
}

func TestFormatAnswer(t *testing.T) {
	plain := FormatAnswer(&rag.Answer{Text: "Just text."})
	if plain != "Just text." {
		t.Fatalf("unexpected plain formatting %q", plain)
	}

	got := FormatAnswer(&rag.Answer{
		Text: "Answer.",
		Sources: []tools.Source{
			{Title: "Course A - Lesson 1", URL: "https://example.com/a/1"},
			{Title: "Course B - Lesson 2"},
		},
	})
	want := "Answer.\n\nSources:\n- Course A - Lesson 1 (https://example.com/a/1)\n- Course B - Lesson 2"
	if got != want {
		t.Fatalf("unexpected formatting:\n got %q\nwant %q", got, want)
	}
}

type handlerRig struct {
	handler  *QueryHandler
	provider *scriptProvider
	tracker  *usage.Tracker
}

func newHandlerRig(t *testing.T, dailyLimit int64, responses ...*llm.ChatResponse) *handlerRig {
	t.Helper()
	dir := t.TempDir()

	store, err := catalog.Open(filepath.Join(dir, "catalog.db"))
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	course := catalog.Course{
		Title:      "MCP: Build Rich-Context AI Apps with Anthropic",
		Link:       "https://example.com/mcp",
		Instructor: "Elie Schoppik",
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

	provider := &scriptProvider{responses: responses}
	tracker := usage.New(filepath.Join(dir, "usage.jsonl"))
	sys := rag.New(rag.Options{
		Generator:       agent.New(provider, manager, agent.Options{SystemPrompt: agent.SystemPrompt}),
		Tools:           manager,
		Sessions:        session.NewManager(filepath.Join(dir, "sessions"), 0),
		Catalog:         store,
		Usage:           tracker,
		Provider:        "anthropic",
		Model:           "claude-sonnet-4-20250514",
		MaxRounds:       2,
		DailyTokenLimit: dailyLimit,
	})
	return &handlerRig{handler: NewQueryHandler(sys), provider: provider, tracker: tracker}
}

type recordingWriter struct {
	messages []string
}

func (w *recordingWriter) WriteMessage(_ context.Context, text string) error {
	w.messages = append(w.messages, text)
	return nil
}

type scriptProvider struct {
	responses []*llm.ChatResponse
	requests  []llm.ChatRequest
	err       error
}

func (p *scriptProvider) Chat(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	p.requests = append(p.requests, req)
	if p.err != nil {
		return nil, p.err
	}
	if len(p.requests) > len(p.responses) {
		return nil, fmt.Errorf("unexpected provider call %d", len(p.requests))
	}
	return p.responses[len(p.requests)-1], nil
}

func textResponse(text string) *llm.ChatResponse {
	return &llm.ChatResponse{
		Blocks:     []chat.Block{chat.Text{Text: text}},
		StopReason: "end_turn",
		Usage:      llm.TokenUsage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15},
	}
}

func toolUseResponse(id, name, input string) *llm.ChatResponse {
	return &llm.ChatResponse{
		Blocks:     []chat.Block{chat.ToolUse{ID: id, Name: name, Input: json.RawMessage(input)}},
		StopReason: "tool_use",
		Usage:      llm.TokenUsage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15},
	}
}
