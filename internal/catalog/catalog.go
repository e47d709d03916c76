// Package catalog stores ingested courses, lessons, and content chunks in
// SQLite, with FTS5 full-text search over chunk content.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	_ "modernc.org/sqlite"
)

// ErrCourseNotFound reports that a course-name filter matched nothing.
var ErrCourseNotFound = errors.New("no matching course found")

// Course is one ingested course with its lesson index. SourceHash fingerprints
// the document the course was ingested from so unchanged files can be skipped.
type Course struct {
	Title      string
	Link       string
	Instructor string
	SourceHash string
	Lessons    []Lesson
}

// Lesson is one entry in a course outline.
type Lesson struct {
	Number int
	Title  string
	Link   string
}

// Chunk is one searchable slice of course content.
type Chunk struct {
	CourseTitle  string
	LessonNumber int
	Index        int
	Content      string
}

// SearchQuery filters a content search. A nil LessonNumber means no lesson
// filter; CourseName may be a partial, case-insensitive course title.
type SearchQuery struct {
	Query        string
	CourseName   string
	LessonNumber *int
	Limit        int
}

// SearchResult is one matching chunk with its resolved lesson link.
type SearchResult struct {
	CourseTitle  string
	LessonNumber int
	LessonLink   string
	Content      string
}

// Store is a SQLite-backed course catalog.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the catalog database at dbPath, enables WAL mode,
// and runs any pending schema migrations.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL keeps readers unblocked while ingest rewrites chunks.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertCourse replaces the course row and its lesson index. Existing chunks
// are untouched; ReplaceChunks owns those.
func (s *Store) UpsertCourse(ctx context.Context, course Course) error {
	if strings.TrimSpace(course.Title) == "" {
		return errors.New("course title is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO courses (title, link, instructor, source_hash) VALUES (?, ?, ?, ?)
		ON CONFLICT(title) DO UPDATE SET
			link=excluded.link, instructor=excluded.instructor, source_hash=excluded.source_hash`,
		course.Title, course.Link, course.Instructor, course.SourceHash,
	); err != nil {
		return fmt.Errorf("upsert course: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM lessons WHERE course_title = ?", course.Title); err != nil {
		return fmt.Errorf("clear lessons: %w", err)
	}
	for _, lesson := range course.Lessons {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO lessons (course_title, lesson_number, title, link) VALUES (?, ?, ?, ?)`,
			course.Title, lesson.Number, lesson.Title, lesson.Link,
		); err != nil {
			return fmt.Errorf("insert lesson %d: %w", lesson.Number, err)
		}
	}

	return tx.Commit()
}

// ReplaceChunks atomically swaps all content chunks for one course.
func (s *Store) ReplaceChunks(ctx context.Context, courseTitle string, chunks []Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE course_title = ?", courseTitle); err != nil {
		return fmt.Errorf("clear chunks: %w", err)
	}
	for _, chunk := range chunks {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO chunks (course_title, lesson_number, chunk_index, content) VALUES (?, ?, ?, ?)`,
			courseTitle, chunk.LessonNumber, chunk.Index, chunk.Content,
		); err != nil {
			return fmt.Errorf("insert chunk %d: %w", chunk.Index, err)
		}
	}

	return tx.Commit()
}

// CourseTitles returns all course titles in insertion order.
func (s *Store) CourseTitles(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT title FROM courses ORDER BY rowid")
	if err != nil {
		return nil, fmt.Errorf("query course titles: %w", err)
	}
	defer rows.Close()

	titles := make([]string, 0)
	for rows.Next() {
		var title string
		if err := rows.Scan(&title); err != nil {
			return nil, fmt.Errorf("scan course title: %w", err)
		}
		titles = append(titles, title)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate course titles: %w", err)
	}
	return titles, nil
}

// CourseCount returns the number of ingested courses.
func (s *Store) CourseCount(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM courses").Scan(&count); err != nil {
		return 0, fmt.Errorf("count courses: %w", err)
	}
	return count, nil
}

// SourceHash returns the stored document fingerprint for an exact course
// title, or "" when the course has never been ingested.
func (s *Store) SourceHash(ctx context.Context, title string) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx,
		"SELECT source_hash FROM courses WHERE title = ?", title,
	).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query source hash: %w", err)
	}
	return hash, nil
}

// GetCourse returns a course and its ordered lessons, resolving name as a
// partial title match. Returns ErrCourseNotFound when nothing matches.
func (s *Store) GetCourse(ctx context.Context, name string) (*Course, error) {
	title, err := s.ResolveCourseTitle(ctx, name)
	if err != nil {
		return nil, err
	}

	course := &Course{Title: title}
	if err := s.db.QueryRowContext(ctx,
		"SELECT link, instructor FROM courses WHERE title = ?", title,
	).Scan(&course.Link, &course.Instructor); err != nil {
		return nil, fmt.Errorf("query course: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT lesson_number, title, link FROM lessons
		WHERE course_title = ? ORDER BY lesson_number`, title)
	if err != nil {
		return nil, fmt.Errorf("query lessons: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var lesson Lesson
		if err := rows.Scan(&lesson.Number, &lesson.Title, &lesson.Link); err != nil {
			return nil, fmt.Errorf("scan lesson: %w", err)
		}
		course.Lessons = append(course.Lessons, lesson)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lessons: %w", err)
	}
	return course, nil
}

// ResolveCourseTitle maps a partial, case-insensitive course name to the
// stored title. The shortest matching title wins so more specific names do
// not shadow exact ones.
func (s *Store) ResolveCourseTitle(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: empty course name", ErrCourseNotFound)
	}

	var title string
	err := s.db.QueryRowContext(ctx, `
		SELECT title FROM courses WHERE title LIKE '%' || ? || '%'
		ORDER BY length(title) LIMIT 1`, name,
	).Scan(&title)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %q", ErrCourseNotFound, name)
	}
	if err != nil {
		return "", fmt.Errorf("resolve course title: %w", err)
	}
	return title, nil
}

// Search runs a ranked full-text search over chunk content, optionally
// scoped to one course and lesson.
func (s *Store) Search(ctx context.Context, q SearchQuery) ([]SearchResult, error) {
	match := ftsQuery(q.Query)
	if match == "" {
		return nil, errors.New("search query is empty")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 5
	}

	sqlQuery := `
		SELECT c.course_title, c.lesson_number, c.content, COALESCE(l.link, '')
		FROM chunks_fts f
		JOIN chunks c ON c.id = f.rowid
		LEFT JOIN lessons l ON l.course_title = c.course_title AND l.lesson_number = c.lesson_number
		WHERE chunks_fts MATCH ?`
	args := []any{match}

	if q.CourseName != "" {
		title, err := s.ResolveCourseTitle(ctx, q.CourseName)
		if err != nil {
			return nil, err
		}
		sqlQuery += " AND c.course_title = ?"
		args = append(args, title)
	}
	if q.LessonNumber != nil {
		sqlQuery += " AND c.lesson_number = ?"
		args = append(args, *q.LessonNumber)
	}
	sqlQuery += " ORDER BY rank LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.CourseTitle, &r.LessonNumber, &r.Content, &r.LessonLink); err != nil {
			return nil, fmt.Errorf("scan search result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search results: %w", err)
	}
	return results, nil
}

// Analytics summarizes catalog contents for the stats endpoint.
type Analytics struct {
	CourseCount  int      `json:"total_courses"`
	CourseTitles []string `json:"course_titles"`
}

// Analytics returns the course count and titles.
func (s *Store) Analytics(ctx context.Context) (Analytics, error) {
	titles, err := s.CourseTitles(ctx)
	if err != nil {
		return Analytics{}, err
	}
	return Analytics{CourseCount: len(titles), CourseTitles: titles}, nil
}

// Clear removes all catalog contents.
func (s *Store) Clear(ctx context.Context) error {
	for _, stmt := range []string{
		"DELETE FROM chunks",
		"DELETE FROM lessons",
		"DELETE FROM courses",
	} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("clear catalog: %w", err)
		}
	}
	return nil
}

// ftsQuery rewrites free text into an FTS5 OR-query of quoted terms, so user
// input can never inject FTS5 operators.
func ftsQuery(query string) string {
	terms := strings.FieldsFunc(query, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	if len(terms) == 0 {
		return ""
	}
	for i, term := range terms {
		terms[i] = `"` + term + `"`
	}
	return strings.Join(terms, " OR ")
}
