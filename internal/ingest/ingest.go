// Package ingest scans a documents directory and indexes course scripts
// into the catalog. Plain-text scripts and markdown documents are parsed
// into lessons, split into overlapping sentence chunks, and stored for
// full-text search. Files whose content is unchanged since the last run
// are skipped.
package ingest

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/lectern-ai/lectern/internal/catalog"
	"github.com/lectern-ai/lectern/internal/config"
	"github.com/lectern-ai/lectern/internal/logging"
)

// lessonMarkerRe matches a "Lesson N: title" section marker in both document
// formats.
var lessonMarkerRe = regexp.MustCompile(`^Lesson\s+(\d+):\s*(.+)$`)

// document is one parsed course file awaiting chunking.
type document struct {
	Title      string
	Link       string
	Instructor string
	Lessons    []lesson
}

// lesson holds one lesson's metadata and raw transcript text.
type lesson struct {
	Number  int
	Title   string
	Link    string
	Content string
}

// Stats summarizes one ingest run.
type Stats struct {
	Scanned   int
	Ingested  int
	Unchanged int
	Failed    int
	Chunks    int
}

// Ingestor indexes course documents from a directory into the catalog.
type Ingestor struct {
	store        *catalog.Store
	dir          string
	chunkSize    int
	chunkOverlap int
}

// New returns an Ingestor reading documents from cfg.DocsDir.
func New(store *catalog.Store, cfg config.IngestConfig) *Ingestor {
	size := cfg.ChunkSize
	if size <= 0 {
		size = 800
	}
	overlap := cfg.ChunkOverlap
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	return &Ingestor{store: store, dir: cfg.DocsDir, chunkSize: size, chunkOverlap: overlap}
}

// Run scans the documents directory once. Malformed or unreadable files are
// logged and counted in Stats.Failed; catalog errors abort the run.
func (ing *Ingestor) Run(ctx context.Context) (Stats, error) {
	var stats Stats

	entries, err := os.ReadDir(ing.dir)
	if errors.Is(err, os.ErrNotExist) {
		logging.Logger().Warn("docs directory missing; nothing to ingest", "dir", ing.dir)
		return stats, nil
	}
	if err != nil {
		return stats, fmt.Errorf("read docs directory: %w", err)
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".txt" && ext != ".md" {
			continue
		}
		stats.Scanned++

		raw, err := os.ReadFile(filepath.Join(ing.dir, entry.Name()))
		if err != nil {
			logging.Logger().Warn("skipping unreadable document", "file", entry.Name(), "err", err)
			stats.Failed++
			continue
		}

		var doc *document
		if ext == ".md" {
			doc, err = parseMarkdown(raw)
		} else {
			doc, err = parseScript(raw)
		}
		if err != nil {
			logging.Logger().Warn("skipping malformed document", "file", entry.Name(), "err", err)
			stats.Failed++
			continue
		}

		hash := fmt.Sprintf("%x", sha256.Sum256(raw))
		stored, err := ing.store.SourceHash(ctx, doc.Title)
		if err != nil {
			return stats, err
		}
		if stored == hash {
			stats.Unchanged++
			continue
		}

		course := catalog.Course{
			Title:      doc.Title,
			Link:       doc.Link,
			Instructor: doc.Instructor,
			SourceHash: hash,
		}
		for _, l := range doc.Lessons {
			course.Lessons = append(course.Lessons, catalog.Lesson{
				Number: l.Number,
				Title:  l.Title,
				Link:   l.Link,
			})
		}
		if err := ing.store.UpsertCourse(ctx, course); err != nil {
			return stats, fmt.Errorf("ingest %s: %w", entry.Name(), err)
		}

		chunks := ing.buildChunks(doc)
		if err := ing.store.ReplaceChunks(ctx, doc.Title, chunks); err != nil {
			return stats, fmt.Errorf("ingest %s: %w", entry.Name(), err)
		}

		stats.Ingested++
		stats.Chunks += len(chunks)
		logging.Logger().Info("ingested course",
			"course", doc.Title,
			"lessons", len(doc.Lessons),
			"chunks", len(chunks))
	}

	return stats, nil
}

// buildChunks splits every lesson into overlapping chunks. The first chunk of
// each lesson is prefixed with the course and lesson it came from, so a chunk
// retrieved on its own still names its source.
func (ing *Ingestor) buildChunks(doc *document) []catalog.Chunk {
	var chunks []catalog.Chunk
	index := 0
	for _, l := range doc.Lessons {
		parts := chunkText(l.Content, ing.chunkSize, ing.chunkOverlap)
		for i, part := range parts {
			if i == 0 {
				part = fmt.Sprintf("Course %s Lesson %d content: %s", doc.Title, l.Number, part)
			}
			chunks = append(chunks, catalog.Chunk{
				CourseTitle:  doc.Title,
				LessonNumber: l.Number,
				Index:        index,
				Content:      part,
			})
			index++
		}
	}
	return chunks
}
