// Package usage tracks LLM token consumption in a JSONL log, one record per
// generate call.
package usage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/lectern-ai/lectern/internal/store"
)

// Record is one persisted usage entry.
type Record struct {
	Timestamp    time.Time `json:"timestamp"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	SessionID    string    `json:"session_id,omitempty"`
	Rounds       int       `json:"rounds"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	TotalTokens  int       `json:"total_tokens"`
}

// Totals aggregates usage over a period.
type Totals struct {
	Requests     int
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
}

// Tracker appends usage records and computes period totals.
type Tracker struct {
	path string
}

// New returns a Tracker for the configured usage JSONL path.
func New(path string) *Tracker {
	return &Tracker{path: path}
}

// Append writes one usage record. A zero timestamp is filled with now.
func (t *Tracker) Append(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.path == "" {
		return errors.New("usage path is required")
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	encoded, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal usage record: %w", err)
	}
	if err := store.Append(t.path, append(encoded, '\n')); err != nil {
		return fmt.Errorf("append usage record: %w", err)
	}
	return nil
}

// Totals sums records stamped at or after since. Malformed lines are
// skipped; a missing file is zero usage.
func (t *Tracker) Totals(ctx context.Context, since time.Time) (Totals, error) {
	var totals Totals

	f, err := os.Open(t.path)
	if errors.Is(err, os.ErrNotExist) {
		return totals, nil
	}
	if err != nil {
		return totals, fmt.Errorf("open usage file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return Totals{}, err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		if rec.Timestamp.Before(since) {
			continue
		}
		totals.Requests++
		totals.InputTokens += int64(rec.InputTokens)
		totals.OutputTokens += int64(rec.OutputTokens)
		totals.TotalTokens += int64(rec.TotalTokens)
	}
	if err := scanner.Err(); err != nil {
		return Totals{}, fmt.Errorf("scan usage file: %w", err)
	}
	return totals, nil
}

// StartOfToday returns local midnight, the window start for daily limits.
func StartOfToday() time.Time {
	now := time.Now().In(time.Local)
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.Local)
}
