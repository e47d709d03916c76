package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lectern-ai/lectern/internal/agent"
	"github.com/lectern-ai/lectern/internal/catalog"
	"github.com/lectern-ai/lectern/internal/chat"
	"github.com/lectern-ai/lectern/internal/config"
	"github.com/lectern-ai/lectern/internal/llm"
	"github.com/lectern-ai/lectern/internal/rag"
	"github.com/lectern-ai/lectern/internal/session"
	"github.com/lectern-ai/lectern/internal/tools"
	"github.com/lectern-ai/lectern/internal/usage"
)

type serverFixture struct {
	provider *scriptProvider
	tracker  *usage.Tracker
	handler  http.Handler
}

func newServerFixture(t *testing.T, dailyLimit int64, responses ...*llm.ChatResponse) *serverFixture {
	t.Helper()
	dir := t.TempDir()

	store, err := catalog.Open(filepath.Join(dir, "catalog.db"))
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	course := catalog.Course{
		Title:      "MCP: Build Rich-Context AI Apps with Anthropic",
		Link:       "https://example.com/mcp",
		Instructor: "Elie Schoppik",
		Lessons:    []catalog.Lesson{{Number: 0, Title: "Introduction", Link: "https://example.com/mcp/lesson/0"}},
	}
	if err := store.UpsertCourse(context.Background(), course); err != nil {
		t.Fatalf("seed course: %v", err)
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

	srv := New(sys, config.ServerConfig{Addr: ":0", RequestTimeout: time.Minute})
	return &serverFixture{provider: provider, tracker: tracker, handler: srv.Handler()}
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	fx := newServerFixture(t, 0)
	rec := doRequest(t, fx.handler, http.MethodGet, "/api/health", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	decodeBody(t, rec, &body)
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("missing CORS header")
	}
}

func TestQueryAnswersAndCreatesSession(t *testing.T) {
	fx := newServerFixture(t, 0, textResponse("Go is a programming language."))
	rec := doRequest(t, fx.handler, http.MethodPost, "/api/query", `{"query":"What is Go?"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var body rag.Answer
	decodeBody(t, rec, &body)
	if body.Text != "Go is a programming language." {
		t.Errorf("answer = %q", body.Text)
	}
	if body.SessionID == "" {
		t.Error("expected a session id in the response")
	}
	if body.Sources == nil {
		t.Error("sources should serialize as an empty list, not null")
	}
}

func TestQueryReusesProvidedSession(t *testing.T) {
	fx := newServerFixture(t, 0,
		textResponse("First answer."),
		textResponse("Second answer."),
	)

	rec := doRequest(t, fx.handler, http.MethodPost, "/api/query", `{"query":"first"}`)
	var first rag.Answer
	decodeBody(t, rec, &first)

	rec = doRequest(t, fx.handler, http.MethodPost, "/api/query",
		fmt.Sprintf(`{"query":"second","session_id":%q}`, first.SessionID))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var second rag.Answer
	decodeBody(t, rec, &second)
	if second.SessionID != first.SessionID {
		t.Errorf("session id changed: %q -> %q", first.SessionID, second.SessionID)
	}

	// The second call replays the first exchange.
	if got := len(fx.provider.requests[1].Messages); got != 3 {
		t.Errorf("second request carried %d messages, want 3", got)
	}
}

func TestQueryEmptyQueryRejected(t *testing.T) {
	fx := newServerFixture(t, 0)
	rec := doRequest(t, fx.handler, http.MethodPost, "/api/query", `{"query":"   "}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	decodeBody(t, rec, &body)
	if body["error"] != "query text is required" {
		t.Errorf("error = %q", body["error"])
	}
	if len(fx.provider.requests) != 0 {
		t.Errorf("provider called %d times for rejected query", len(fx.provider.requests))
	}
}

func TestQueryMalformedBodyRejected(t *testing.T) {
	fx := newServerFixture(t, 0)
	rec := doRequest(t, fx.handler, http.MethodPost, "/api/query", `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestQueryWrongMethodRejected(t *testing.T) {
	fx := newServerFixture(t, 0)
	rec := doRequest(t, fx.handler, http.MethodGet, "/api/query", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestQueryProviderFailureReturns500(t *testing.T) {
	fx := newServerFixture(t, 0)
	fx.provider.err = errors.New("quota exhausted")

	rec := doRequest(t, fx.handler, http.MethodPost, "/api/query", `{"query":"hi"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	decodeBody(t, rec, &body)
	if !strings.Contains(body["error"], "quota exhausted") {
		t.Errorf("error = %q", body["error"])
	}
}

func TestQueryDailyLimitReturns429(t *testing.T) {
	fx := newServerFixture(t, 100)
	if err := fx.tracker.Append(context.Background(), usage.Record{TotalTokens: 150}); err != nil {
		t.Fatalf("seed usage: %v", err)
	}

	rec := doRequest(t, fx.handler, http.MethodPost, "/api/query", `{"query":"hi"}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if len(fx.provider.requests) != 0 {
		t.Errorf("provider called despite exhausted daily limit")
	}
}

func TestCoursesEndpoint(t *testing.T) {
	fx := newServerFixture(t, 0)
	rec := doRequest(t, fx.handler, http.MethodGet, "/api/courses", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body catalog.Analytics
	decodeBody(t, rec, &body)
	if body.CourseCount != 1 {
		t.Errorf("total_courses = %d", body.CourseCount)
	}
	if len(body.CourseTitles) != 1 || !strings.HasPrefix(body.CourseTitles[0], "MCP") {
		t.Errorf("course_titles = %q", body.CourseTitles)
	}
}

func TestPreflightShortCircuits(t *testing.T) {
	fx := newServerFixture(t, 0)
	rec := doRequest(t, fx.handler, http.MethodOptions, "/api/query", "")

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Methods") == "" {
		t.Error("missing preflight CORS headers")
	}
	if len(fx.provider.requests) != 0 {
		t.Error("preflight reached a handler")
	}
}

func TestUnknownPathReturns404(t *testing.T) {
	fx := newServerFixture(t, 0)
	rec := doRequest(t, fx.handler, http.MethodGet, "/api/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
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
