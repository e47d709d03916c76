// Package runtime decouples channel transports from message handling: a
// Listener feeds inbound messages into a Dispatcher, which runs them through
// a Handler one at a time.
package runtime

import "context"

// Message is one inbound channel message. SessionKey is the transport's
// stable conversation key (a fixed REPL key, a chat id) and selects which
// stored session the handler continues.
type Message struct {
	Text       string
	SessionKey string
}

// ResponseWriter sends handler responses back to the originating transport.
type ResponseWriter interface {
	WriteMessage(ctx context.Context, text string) error
}

// Handler processes inbound messages and writes responses.
type Handler interface {
	HandleMessage(ctx context.Context, w ResponseWriter, msg *Message) error
}

// Listener receives channel input and dispatches it to a Handler.
type Listener interface {
	Listen(ctx context.Context, handler Handler) error
}
