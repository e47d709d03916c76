package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/lectern-ai/lectern/internal/catalog"
)

// CourseSearchTool searches course content chunks, with optional course and
// lesson scoping. It records one source per returned chunk.
type CourseSearchTool struct {
	store *catalog.Store
	limit int

	mu      sync.Mutex
	sources []Source
}

// NewCourseSearchTool builds the content search tool. limit caps results per
// search.
func NewCourseSearchTool(store *catalog.Store, limit int) *CourseSearchTool {
	return &CourseSearchTool{store: store, limit: limit}
}

func (t *CourseSearchTool) Name() string { return "search_course_content" }

func (t *CourseSearchTool) Description() string {
	return "Search course materials with smart course name matching and lesson filtering"
}

func (t *CourseSearchTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "What to search for in the course content",
			},
			"course_name": map[string]any{
				"type":        "string",
				"description": "Course title (partial matches work, e.g. 'MCP', 'Introduction')",
			},
			"lesson_number": map[string]any{
				"type":        "integer",
				"description": "Specific lesson number to search within (e.g. 1, 2, 3)",
			},
		},
		"required": []string{"query"},
	}
}

type searchArgs struct {
	Query        string `json:"query"`
	CourseName   string `json:"course_name"`
	LessonNumber *int   `json:"lesson_number"`
}

// Execute runs the search and formats matches as bracketed context blocks.
// An empty result set is an answer, not an error.
func (t *CourseSearchTool) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	var args searchArgs
	if err := json.Unmarshal(input, &args); err != nil {
		return "", fmt.Errorf("parse search arguments: %w", err)
	}

	results, err := t.store.Search(ctx, catalog.SearchQuery{
		Query:        args.Query,
		CourseName:   args.CourseName,
		LessonNumber: args.LessonNumber,
		Limit:        t.limit,
	})
	if err != nil {
		return "", err
	}

	if len(results) == 0 {
		t.setSources(nil)
		return emptySearchMessage(args), nil
	}

	var b strings.Builder
	sources := make([]Source, 0, len(results))
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%s - Lesson %d]\n%s", r.CourseTitle, r.LessonNumber, r.Content)
		sources = append(sources, Source{
			Title: fmt.Sprintf("%s - Lesson %d", r.CourseTitle, r.LessonNumber),
			URL:   r.LessonLink,
		})
	}
	t.setSources(sources)
	return b.String(), nil
}

func emptySearchMessage(args searchArgs) string {
	msg := "No relevant content found"
	if args.CourseName != "" {
		msg += fmt.Sprintf(" in course '%s'", args.CourseName)
	}
	if args.LessonNumber != nil {
		msg += fmt.Sprintf(" in lesson %d", *args.LessonNumber)
	}
	return msg + "."
}

func (t *CourseSearchTool) setSources(sources []Source) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sources = sources
}

// LastSources returns the sources recorded by the most recent execution.
func (t *CourseSearchTool) LastSources() []Source {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sources
}

// ResetSources clears recorded sources.
func (t *CourseSearchTool) ResetSources() {
	t.setSources(nil)
}
