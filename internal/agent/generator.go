// Package agent implements the bounded tool-calling generation loop: one
// provider call, up to a fixed number of sequential tool rounds, and a
// guaranteed text answer.
package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/lectern-ai/lectern/internal/chat"
	"github.com/lectern-ai/lectern/internal/llm"
	"github.com/lectern-ai/lectern/internal/logging"
)

const defaultMaxRounds = 2

// fallbackAnswer is returned when a terminal response carries no text block.
const fallbackAnswer = "I was unable to generate a response."

// ToolExecutor runs one tool call and folds any failure into an
// error-flagged result. *tools.Manager satisfies it.
type ToolExecutor interface {
	Execute(ctx context.Context, use chat.ToolUse) chat.ToolResult
}

// Options configure a Generator beyond its provider and executor.
type Options struct {
	SystemPrompt string
	MaxTokens    int
	Temperature  float64
	// RoundTimeout bounds each round (one provider call plus that round's
	// tool executions). Zero means no per-round deadline.
	RoundTimeout time.Duration
}

// Generator drives bounded sequential tool-calling rounds against one
// provider. It is stateless across calls and safe for concurrent use.
type Generator struct {
	provider     llm.Provider
	exec         ToolExecutor
	systemPrompt string
	maxTokens    int
	temperature  float64
	roundTimeout time.Duration
}

// New builds a Generator. exec may be nil for a tool-less assistant.
func New(provider llm.Provider, exec ToolExecutor, opts Options) *Generator {
	return &Generator{
		provider:     provider,
		exec:         exec,
		systemPrompt: opts.SystemPrompt,
		maxTokens:    opts.MaxTokens,
		temperature:  opts.Temperature,
		roundTimeout: opts.RoundTimeout,
	}
}

// Request is one generation invocation.
type Request struct {
	Query   string
	History []chat.Message
	Tools   []llm.ToolDefinition
	// MaxRounds caps sequential tool rounds; non-positive falls back to 2.
	MaxRounds int
}

// Result is the outcome of one generation.
type Result struct {
	// Answer is the final text shown to the user.
	Answer string
	// Messages are the new messages this invocation produced: the user query,
	// one assistant plus one tool-result message per round, and the final
	// assistant message. The caller's history is never mutated.
	Messages []chat.Message
	// Rounds is the number of tool rounds actually executed.
	Rounds int
	Usage  llm.TokenUsage
}

// Generate runs the loop: call the provider with tools offered, execute any
// requested tools, feed results back, and repeat until the model answers in
// text or rounds run out. When rounds run out with the model still asking
// for tools, the last call is made without tool definitions so the model
// must answer. Total provider calls never exceed MaxRounds+1.
func (g *Generator) Generate(ctx context.Context, req Request) (*Result, error) {
	maxRounds := req.MaxRounds
	if maxRounds <= 0 {
		maxRounds = defaultMaxRounds
	}

	produced := []chat.Message{chat.UserText(req.Query)}
	offered := req.Tools
	var usage llm.TokenUsage
	rounds := 0

	for {
		messages := make([]chat.Message, 0, len(req.History)+len(produced))
		messages = append(messages, req.History...)
		messages = append(messages, produced...)

		logging.Logger().Info(
			"llm request",
			"round", rounds,
			"message_count", len(messages),
			"tool_count", len(offered),
		)

		roundCtx, cancel := g.roundContext(ctx)
		resp, err := g.provider.Chat(roundCtx, llm.ChatRequest{
			SystemPrompt: g.systemPrompt,
			Messages:     messages,
			Tools:        offered,
			MaxTokens:    g.maxTokens,
			Temperature:  g.temperature,
		})
		if err != nil {
			cancel()
			return nil, err
		}

		usage.Add(resp.Usage)
		assistant := resp.Message()
		uses := assistant.ToolUses()

		logging.Logger().Info(
			"llm response",
			"round", rounds,
			"stop_reason", resp.StopReason,
			"tool_use_count", len(uses),
			"input_tokens", resp.Usage.InputTokens,
			"output_tokens", resp.Usage.OutputTokens,
		)

		if len(uses) == 0 || g.exec == nil || rounds >= maxRounds {
			cancel()
			produced = append(produced, assistant)
			answer := assistant.FirstText()
			if answer == "" {
				answer = fallbackAnswer
			}
			return &Result{Answer: answer, Messages: produced, Rounds: rounds, Usage: usage}, nil
		}

		rounds++
		produced = append(produced, assistant)

		// Results go back in issued order regardless of execution latency.
		results := make([]chat.ToolResult, 0, len(uses))
		for _, use := range uses {
			startedAt := time.Now()
			result := g.exec.Execute(roundCtx, use)
			logging.Logger().Info(
				"tool call",
				"tool", use.Name,
				"tool_use_id", use.ID,
				"duration_ms", time.Since(startedAt).Milliseconds(),
				"is_error", result.IsError,
			)
			results = append(results, result)
		}
		if err := roundCtx.Err(); err != nil {
			cancel()
			return nil, fmt.Errorf("tool round %d: %w", rounds, err)
		}
		cancel()
		produced = append(produced, chat.ToolResults(results...))

		// Last allowed round: strip tools so the follow-up call must answer.
		if rounds >= maxRounds {
			offered = nil
		}
	}
}

func (g *Generator) roundContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.roundTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, g.roundTimeout)
}
