// Package channels provides runtime.Listener implementations for each
// supported input surface (terminal REPL, Telegram) and the shared handler
// that answers their messages through the query engine.
package channels

import (
	"context"
	"errors"
	"strings"

	"github.com/lectern-ai/lectern/internal/rag"
	"github.com/lectern-ai/lectern/internal/runtime"
)

const (
	welcomeReply = "Hi! Ask me anything about the course materials. Send /new to start a fresh conversation."
	resetReply   = "Started a fresh conversation."
	limitReply   = "The daily usage limit has been reached. Please try again tomorrow."
)

var _ runtime.Handler = (*QueryHandler)(nil)

// QueryHandler answers channel messages through the query engine. The
// message's session key doubles as the stored session id, so each channel
// conversation keeps its own history.
type QueryHandler struct {
	engine *rag.System
}

// NewQueryHandler returns a handler backed by engine.
func NewQueryHandler(engine *rag.System) *QueryHandler {
	return &QueryHandler{engine: engine}
}

// HandleMessage resolves commands locally and sends everything else to the
// query engine, replying with the answer and its sources.
func (h *QueryHandler) HandleMessage(ctx context.Context, w runtime.ResponseWriter, msg *runtime.Message) error {
	text := strings.TrimSpace(msg.Text)
	switch strings.ToLower(text) {
	case "":
		return nil
	case "/start":
		return w.WriteMessage(ctx, welcomeReply)
	case "/new":
		if err := h.engine.ResetSession(ctx, msg.SessionKey); err != nil {
			return err
		}
		return w.WriteMessage(ctx, resetReply)
	}

	answer, err := h.engine.Query(ctx, text, msg.SessionKey)
	if err != nil {
		if errors.Is(err, rag.ErrDailyLimitExceeded) {
			return w.WriteMessage(ctx, limitReply)
		}
		return err
	}
	return w.WriteMessage(ctx, FormatAnswer(answer))
}

// FormatAnswer renders an answer with its source list for plain-text
// transports.
func FormatAnswer(a *rag.Answer) string {
	if len(a.Sources) == 0 {
		return a.Text
	}
	var b strings.Builder
	b.WriteString(a.Text)
	b.WriteString("\n\nSources:\n")
	for _, src := range a.Sources {
		b.WriteString("- ")
		b.WriteString(src.Title)
		if src.URL != "" {
			b.WriteString(" (")
			b.WriteString(src.URL)
			b.WriteString(")")
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}
