package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/lectern-ai/lectern/internal/catalog"
)

// CourseOutlineTool returns a course's title, link, and full lesson list.
type CourseOutlineTool struct {
	store *catalog.Store

	mu      sync.Mutex
	sources []Source
}

// NewCourseOutlineTool builds the outline tool.
func NewCourseOutlineTool(store *catalog.Store) *CourseOutlineTool {
	return &CourseOutlineTool{store: store}
}

func (t *CourseOutlineTool) Name() string { return "get_course_outline" }

func (t *CourseOutlineTool) Description() string {
	return "Get the course title, course link, and complete lesson list for a course"
}

func (t *CourseOutlineTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"course_title": map[string]any{
				"type":        "string",
				"description": "Course title (partial matches work, e.g. 'MCP')",
			},
		},
		"required": []string{"course_title"},
	}
}

type outlineArgs struct {
	CourseTitle string `json:"course_title"`
}

// Execute resolves the course and renders its outline. An unknown course is
// a content-level miss reported as text, not a tool failure.
func (t *CourseOutlineTool) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	var args outlineArgs
	if err := json.Unmarshal(input, &args); err != nil {
		return "", fmt.Errorf("parse outline arguments: %w", err)
	}

	course, err := t.store.GetCourse(ctx, args.CourseTitle)
	if errors.Is(err, catalog.ErrCourseNotFound) {
		t.setSources(nil)
		return fmt.Sprintf("No course found matching '%s'.", args.CourseTitle), nil
	}
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Course: %s\n", course.Title)
	if course.Link != "" {
		fmt.Fprintf(&b, "Course Link: %s\n", course.Link)
	}
	if course.Instructor != "" {
		fmt.Fprintf(&b, "Instructor: %s\n", course.Instructor)
	}
	fmt.Fprintf(&b, "Lessons (%d):", len(course.Lessons))
	for _, lesson := range course.Lessons {
		fmt.Fprintf(&b, "\nLesson %d: %s", lesson.Number, lesson.Title)
	}

	t.setSources([]Source{{Title: course.Title, URL: course.Link}})
	return b.String(), nil
}

func (t *CourseOutlineTool) setSources(sources []Source) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sources = sources
}

// LastSources returns the sources recorded by the most recent execution.
func (t *CourseOutlineTool) LastSources() []Source {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sources
}

// ResetSources clears recorded sources.
func (t *CourseOutlineTool) ResetSources() {
	t.setSources(nil)
}
