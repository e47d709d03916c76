package ingest

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// parseScript parses the plain-text course script format: "Course Title:",
// "Course Link:" and "Course Instructor:" header lines followed by
// "Lesson N: title" sections, each optionally opening with a "Lesson Link:"
// line before the transcript text.
func parseScript(src []byte) (*document, error) {
	doc := &document{}
	var lessons []*lesson
	var current *lesson
	var content []string

	flush := func() {
		if current != nil {
			current.Content = strings.Join(content, "\n")
		}
		content = nil
	}

	scanner := bufio.NewScanner(bytes.NewReader(src))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		trimmed := strings.TrimSpace(line)

		if m := lessonMarkerRe.FindStringSubmatch(trimmed); m != nil {
			flush()
			number, _ := strconv.Atoi(m[1])
			current = &lesson{Number: number, Title: strings.TrimSpace(m[2])}
			lessons = append(lessons, current)
			continue
		}

		if current == nil {
			switch {
			case strings.HasPrefix(trimmed, "Course Title:"):
				doc.Title = strings.TrimSpace(strings.TrimPrefix(trimmed, "Course Title:"))
			case strings.HasPrefix(trimmed, "Course Link:"):
				doc.Link = strings.TrimSpace(strings.TrimPrefix(trimmed, "Course Link:"))
			case strings.HasPrefix(trimmed, "Course Instructor:"):
				doc.Instructor = strings.TrimSpace(strings.TrimPrefix(trimmed, "Course Instructor:"))
			}
			continue
		}

		// Leading blank lines are dropped so a "Lesson Link:" line still
		// counts as the section opener even after an empty line.
		if len(content) == 0 && trimmed == "" {
			continue
		}
		if len(content) == 0 && current.Link == "" {
			if after, ok := strings.CutPrefix(trimmed, "Lesson Link:"); ok {
				current.Link = strings.TrimSpace(after)
				continue
			}
		}
		content = append(content, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan script: %w", err)
	}
	flush()

	if strings.TrimSpace(doc.Title) == "" {
		return nil, fmt.Errorf("script document has no Course Title header")
	}
	for _, l := range lessons {
		doc.Lessons = append(doc.Lessons, *l)
	}
	return doc, nil
}
