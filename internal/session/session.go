// Package session persists conversation history as JSONL records, one file
// per session id, and serializes access per session so concurrent requests
// against the same session cannot interleave.
package session

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lectern-ai/lectern/internal/chat"
	"github.com/lectern-ai/lectern/internal/store"
)

const fileExt = ".jsonl"

// Manager owns the session directory. Each session is one JSONL file whose
// lines are chat messages.
type Manager struct {
	dir string
	// recentMessages caps how many trailing messages History returns.
	// Zero means unbounded.
	recentMessages int

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewManager creates a manager rooted at dir.
func NewManager(dir string, recentMessages int) *Manager {
	return &Manager{
		dir:            dir,
		recentMessages: recentMessages,
		locks:          map[string]*sync.Mutex{},
	}
}

// Create allocates a new session id and its backing file.
func (m *Manager) Create(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	if err := store.Append(m.pathUnchecked(id.String()), nil); err != nil {
		return "", fmt.Errorf("create session file: %w", err)
	}
	return id.String(), nil
}

// Acquire locks the session and returns its release func. Callers hold the
// lock across load, generate, and append; distinct sessions proceed in
// parallel.
func (m *Manager) Acquire(id string) func() {
	m.locksMu.Lock()
	lock, ok := m.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[id] = lock
	}
	m.locksMu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// History loads the session's messages, keeps the trailing window, and
// repairs any tool turn the window cut in half. An unknown id is an empty
// history. Malformed lines are skipped.
func (m *Manager) History(ctx context.Context, id string) ([]chat.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := m.sessionPath(id)
	if err != nil {
		return nil, err
	}

	raw, err := store.Read(path)
	if errors.Is(err, os.ErrNotExist) {
		return []chat.Message{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}

	messages := make([]chat.Message, 0)
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var msg chat.Message
		if err := json.Unmarshal(line, &msg); err != nil {
			continue
		}
		messages = append(messages, msg)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan session file: %w", err)
	}

	windowed := recentWindow(messages, m.recentMessages)
	sanitized, _ := chat.SanitizeToolTurns(windowed)
	return sanitized, nil
}

// Append appends messages as JSONL records, creating the session file if
// missing.
func (m *Manager) Append(ctx context.Context, id string, messages []chat.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(messages) == 0 {
		return nil
	}
	path, err := m.sessionPath(id)
	if err != nil {
		return err
	}

	var b bytes.Buffer
	for _, msg := range messages {
		encoded, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("marshal session record: %w", err)
		}
		b.Write(encoded)
		b.WriteByte('\n')
	}

	if err := store.Append(path, b.Bytes()); err != nil {
		return fmt.Errorf("append session records: %w", err)
	}
	return nil
}

// Reset clears the session's history, keeping the file.
func (m *Manager) Reset(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := m.sessionPath(id)
	if err != nil {
		return err
	}
	if err := store.Replace(path, nil); err != nil {
		return fmt.Errorf("reset session: %w", err)
	}
	return nil
}

// CleanupIdle removes session files not written to for longer than ttl and
// reports how many were removed. Files it cannot stat or remove are left for
// the next sweep.
func (m *Manager) CleanupIdle(ctx context.Context, ttl time.Duration) (int, error) {
	entries, err := os.ReadDir(m.dir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read sessions dir: %w", err)
	}

	cutoff := time.Now().Add(-ttl)
	removed := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), fileExt) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}

		id := strings.TrimSuffix(entry.Name(), fileExt)
		release := m.Acquire(id)
		err = store.Remove(filepath.Join(m.dir, entry.Name()))
		release()
		if err != nil {
			continue
		}
		removed++
	}
	return removed, nil
}

func (m *Manager) sessionPath(id string) (string, error) {
	if id == "" || id != filepath.Base(id) || strings.HasPrefix(id, ".") {
		return "", fmt.Errorf("invalid session id %q", id)
	}
	return m.pathUnchecked(id), nil
}

func (m *Manager) pathUnchecked(id string) string {
	return filepath.Join(m.dir, id+fileExt)
}

// recentWindow keeps the trailing count messages. When the cut lands on a
// tool-result message its assistant pair is pulled back into view so the
// turn survives sanitizing.
func recentWindow(messages []chat.Message, count int) []chat.Message {
	if count <= 0 || count >= len(messages) {
		return messages
	}
	start := len(messages) - count
	if hasToolResults(messages[start]) && start > 0 && messages[start-1].HasToolUse() {
		start--
	}
	return messages[start:]
}

func hasToolResults(msg chat.Message) bool {
	for _, block := range msg.Blocks {
		if _, ok := block.(chat.ToolResult); ok {
			return true
		}
	}
	return false
}
