package ingest

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gtext "github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"
)

// markdownMeta is the YAML frontmatter of a markdown course document.
type markdownMeta struct {
	Title      string `yaml:"title"`
	Link       string `yaml:"link"`
	Instructor string `yaml:"instructor"`
}

// parseMarkdown parses a markdown course document. YAML frontmatter carries
// the course metadata, each "## Lesson N: title" heading opens a lesson, and
// a document without frontmatter may name the course in its first H1.
func parseMarkdown(src []byte) (*document, error) {
	meta, body, err := splitFrontmatter(src)
	if err != nil {
		return nil, err
	}

	doc := &document{Title: meta.Title, Link: meta.Link, Instructor: meta.Instructor}
	root := goldmark.New().Parser().Parse(gtext.NewReader(body))

	var lessons []*lesson
	var current *lesson
	for node := root.FirstChild(); node != nil; node = node.NextSibling() {
		if heading, ok := node.(*ast.Heading); ok {
			text := strings.TrimSpace(plainText(heading, body))
			if heading.Level == 1 && doc.Title == "" {
				doc.Title = text
				continue
			}
			if m := lessonMarkerRe.FindStringSubmatch(text); heading.Level == 2 && m != nil {
				number, _ := strconv.Atoi(m[1])
				current = &lesson{Number: number, Title: strings.TrimSpace(m[2])}
				lessons = append(lessons, current)
				continue
			}
			// Deeper headings fall through and join the open lesson's text.
		}
		if current == nil {
			// Preamble before the first lesson heading is not indexed.
			continue
		}
		block := strings.TrimSpace(plainText(node, body))
		if block == "" {
			continue
		}
		if current.Content == "" {
			if link, rest := cutLessonLink(block); link != "" {
				current.Link = link
				if rest == "" {
					continue
				}
				block = rest
			}
		}
		if current.Content != "" {
			current.Content += "\n"
		}
		current.Content += block
	}

	if strings.TrimSpace(doc.Title) == "" {
		return nil, fmt.Errorf("markdown document has no course title")
	}
	for _, l := range lessons {
		doc.Lessons = append(doc.Lessons, *l)
	}
	return doc, nil
}

// splitFrontmatter slices a leading "---" YAML block off a markdown document.
// Documents without one are returned unchanged.
func splitFrontmatter(src []byte) (markdownMeta, []byte, error) {
	var meta markdownMeta
	lines := strings.SplitAfter(string(src), "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return meta, src, nil
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) != "---" {
			continue
		}
		block := strings.Join(lines[1:i], "")
		if err := yaml.Unmarshal([]byte(block), &meta); err != nil {
			return meta, nil, fmt.Errorf("parse frontmatter: %w", err)
		}
		return meta, []byte(strings.Join(lines[i+1:], "")), nil
	}
	return meta, nil, fmt.Errorf("unterminated frontmatter block")
}

// cutLessonLink extracts a leading "Lesson Link: url" line from a lesson's
// first content block.
func cutLessonLink(block string) (link, rest string) {
	first, remainder, _ := strings.Cut(block, "\n")
	after, ok := strings.CutPrefix(first, "Lesson Link:")
	if !ok {
		return "", block
	}
	return strings.TrimSpace(after), strings.TrimSpace(remainder)
}

// plainText flattens a node's text content. Soft and hard line breaks become
// newlines so line-oriented markers inside a block stay detectable, and code
// blocks contribute their raw lines.
func plainText(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	_ = ast.Walk(n, func(child ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := child.(type) {
		case *ast.Text:
			buf.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				buf.WriteByte('\n')
			}
		case *ast.String:
			buf.Write(t.Value)
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			lines := child.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				buf.Write(seg.Value(source))
			}
		}
		return ast.WalkContinue, nil
	})
	return buf.String()
}
