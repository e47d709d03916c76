// Package store centralizes low-level file reads and writes shared by the
// JSONL-backed stores. A per-path mutex keeps concurrent writers from
// corrupting one file; higher-level serialization belongs to the callers.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var (
	locksMu sync.Mutex
	locks   = map[string]*sync.Mutex{}
)

// Read returns the file's contents.
func Read(path string) ([]byte, error) {
	clean, err := cleanPath(path)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(clean)
}

// Replace atomically swaps the file's contents, writing a sibling temp file
// and renaming it into place. The parent directory is created if missing.
func Replace(path string, data []byte) error {
	clean, err := cleanPath(path)
	if err != nil {
		return err
	}

	lock := lockFor(clean)
	lock.Lock()
	defer lock.Unlock()

	dir := filepath.Dir(clean)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(clean)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file for %q: %w", clean, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	_, writeErr := tmp.Write(data)
	if writeErr == nil {
		writeErr = tmp.Chmod(0o644)
	}
	if closeErr := tmp.Close(); writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		return fmt.Errorf("write temp file for %q: %w", clean, writeErr)
	}

	if err := os.Rename(tmpPath, clean); err != nil {
		return fmt.Errorf("replace file %q: %w", clean, err)
	}
	return nil
}

// Append appends data to the file, creating it and its parent directory if
// missing.
func Append(path string, data []byte) error {
	clean, err := cleanPath(path)
	if err != nil {
		return err
	}

	lock := lockFor(clean)
	lock.Lock()
	defer lock.Unlock()

	dir := filepath.Dir(clean)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}

	f, err := os.OpenFile(clean, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open file %q for append: %w", clean, err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("append file %q: %w", clean, err)
	}
	return nil
}

// Remove deletes the file. A missing file is not an error.
func Remove(path string) error {
	clean, err := cleanPath(path)
	if err != nil {
		return err
	}

	lock := lockFor(clean)
	lock.Lock()
	defer lock.Unlock()

	if err := os.Remove(clean); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove file %q: %w", clean, err)
	}
	return nil
}

func lockFor(path string) *sync.Mutex {
	locksMu.Lock()
	defer locksMu.Unlock()

	lock, ok := locks[path]
	if !ok {
		lock = &sync.Mutex{}
		locks[path] = lock
	}
	return lock
}

func cleanPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", errors.New("path is required")
	}
	return filepath.Clean(trimmed), nil
}
