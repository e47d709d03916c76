// Package rag wires sessions, generation, tools, and usage tracking into
// the query façade the transports call.
package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lectern-ai/lectern/internal/agent"
	"github.com/lectern-ai/lectern/internal/catalog"
	"github.com/lectern-ai/lectern/internal/logging"
	"github.com/lectern-ai/lectern/internal/session"
	"github.com/lectern-ai/lectern/internal/tools"
	"github.com/lectern-ai/lectern/internal/usage"
)

// ErrDailyLimitExceeded reports that today's recorded token usage already
// meets the configured daily limit.
var ErrDailyLimitExceeded = errors.New("daily token limit exceeded")

// Generator produces answers. *agent.Generator satisfies it.
type Generator interface {
	Generate(ctx context.Context, req agent.Request) (*agent.Result, error)
}

// Answer is the externally visible result of one query.
type Answer struct {
	Text      string         `json:"answer"`
	Sources   []tools.Source `json:"sources"`
	SessionID string         `json:"session_id"`
}

// Options assemble a System's collaborators. Provider and Model label usage
// records; they do not select anything.
type Options struct {
	Generator Generator
	Tools     *tools.Manager
	Sessions  *session.Manager
	Catalog   *catalog.Store
	Usage     *usage.Tracker
	Provider  string
	Model     string
	MaxRounds int
	// DailyTokenLimit blocks queries once today's recorded usage meets it.
	// Zero disables the gate.
	DailyTokenLimit int64
}

// System binds a query to a session and drives the generation loop.
type System struct {
	generator  Generator
	tools      *tools.Manager
	sessions   *session.Manager
	catalog    *catalog.Store
	usage      *usage.Tracker
	provider   string
	model      string
	maxRounds  int
	dailyLimit int64
}

// New assembles the query façade.
func New(opts Options) *System {
	return &System{
		generator:  opts.Generator,
		tools:      opts.Tools,
		sessions:   opts.Sessions,
		catalog:    opts.Catalog,
		usage:      opts.Usage,
		provider:   opts.Provider,
		model:      opts.Model,
		maxRounds:  opts.MaxRounds,
		dailyLimit: opts.DailyTokenLimit,
	}
}

// Query answers text within the given session, creating a session when the
// id is empty. The session lock is held across load, generate, and append,
// so concurrent queries against one session serialize. Generator and session
// failures propagate unchanged; tool failures never surface here.
func (s *System) Query(ctx context.Context, text, sessionID string) (*Answer, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("query text is required")
	}
	if err := s.checkDailyLimit(ctx); err != nil {
		return nil, err
	}

	if sessionID == "" {
		id, err := s.sessions.Create(ctx)
		if err != nil {
			return nil, fmt.Errorf("create session: %w", err)
		}
		sessionID = id
	}

	release := s.sessions.Acquire(sessionID)
	defer release()

	history, err := s.sessions.History(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	// Clear any sources a previous generation left behind before this one
	// starts recording.
	s.tools.ResetSources()

	result, err := s.generator.Generate(ctx, agent.Request{
		Query:     text,
		History:   history,
		Tools:     s.tools.Definitions(),
		MaxRounds: s.maxRounds,
	})
	if err != nil {
		return nil, err
	}

	if err := s.sessions.Append(ctx, sessionID, result.Messages); err != nil {
		return nil, err
	}

	sources := s.tools.LastSources()
	s.tools.ResetSources()
	if sources == nil {
		// The API contract is an empty source list, never null.
		sources = []tools.Source{}
	}

	s.recordUsage(ctx, sessionID, result)

	logging.Logger().Info(
		"query answered",
		"session_id", sessionID,
		"rounds", result.Rounds,
		"total_tokens", result.Usage.TotalTokens,
		"source_count", len(sources),
	)

	return &Answer{Text: result.Answer, Sources: sources, SessionID: sessionID}, nil
}

// ResetSession clears a session's history.
func (s *System) ResetSession(ctx context.Context, sessionID string) error {
	release := s.sessions.Acquire(sessionID)
	defer release()
	return s.sessions.Reset(ctx, sessionID)
}

// Analytics returns the course count and titles for the stats endpoint.
func (s *System) Analytics(ctx context.Context) (catalog.Analytics, error) {
	return s.catalog.Analytics(ctx)
}

func (s *System) checkDailyLimit(ctx context.Context) error {
	if s.dailyLimit <= 0 || s.usage == nil {
		return nil
	}
	totals, err := s.usage.Totals(ctx, usage.StartOfToday())
	if err != nil {
		// A broken usage log should not block queries.
		logging.Logger().Warn("usage totals unavailable; skipping daily limit", "err", err)
		return nil
	}
	if totals.TotalTokens >= s.dailyLimit {
		return fmt.Errorf("%w: %d tokens recorded today, limit %d",
			ErrDailyLimitExceeded, totals.TotalTokens, s.dailyLimit)
	}
	return nil
}

func (s *System) recordUsage(ctx context.Context, sessionID string, result *agent.Result) {
	if s.usage == nil {
		return
	}
	err := s.usage.Append(ctx, usage.Record{
		Provider:     s.provider,
		Model:        s.model,
		SessionID:    sessionID,
		Rounds:       result.Rounds,
		InputTokens:  result.Usage.InputTokens,
		OutputTokens: result.Usage.OutputTokens,
		TotalTokens:  result.Usage.TotalTokens,
	})
	if err != nil {
		logging.Logger().Warn("failed to record usage", "err", err)
	}
}
