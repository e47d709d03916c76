package runtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/lectern-ai/lectern/internal/logging"
)

// handlerFailureReply is what a channel user sees when answering fails.
// Error details stay in the logs.
const handlerFailureReply = "Something went wrong while answering that. Check the server logs for details."

// Dispatcher runs queued messages through a Handler one at a time, in
// arrival order. A query in flight can be canceled by Stop without tearing
// the dispatch loop down.
type Dispatcher struct {
	handler Handler

	queue chan envelope
	done  chan struct{}

	mu         sync.Mutex
	started    bool
	root       context.Context
	currentRun context.CancelFunc
}

type envelope struct {
	msg    *Message
	writer ResponseWriter
}

// NewDispatcher creates a dispatcher with a fixed-size queue.
func NewDispatcher(handler Handler, queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Dispatcher{
		handler: handler,
		queue:   make(chan envelope, queueSize),
		done:    make(chan struct{}),
	}
}

// Start begins the dispatch loop. It may be called once.
func (d *Dispatcher) Start(ctx context.Context) error {
	if d == nil {
		return errors.New("dispatcher is required")
	}
	if d.handler == nil {
		return errors.New("handler is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return errors.New("dispatcher already started")
	}
	d.started = true
	d.root = ctx
	d.mu.Unlock()

	go d.run(ctx)
	return nil
}

// Enqueue submits one message for FIFO processing. It blocks while the
// queue is full.
func (d *Dispatcher) Enqueue(ctx context.Context, msg *Message, writer ResponseWriter) error {
	if msg == nil {
		return errors.New("message is required")
	}
	if writer == nil {
		return errors.New("response writer is required")
	}
	root, started := d.rootContext()
	if !started {
		return errors.New("dispatcher is not started")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case <-root.Done():
		return root.Err()
	case <-ctx.Done():
		return ctx.Err()
	case d.queue <- envelope{msg: msg, writer: writer}:
		return nil
	}
}

// Stop cancels the in-flight message and discards everything queued.
func (d *Dispatcher) Stop() {
	d.cancelCurrentRun()
	for {
		select {
		case <-d.queue:
		default:
			return
		}
	}
}

// WaitUntilIdle blocks until no message is running and the queue is empty.
func (d *Dispatcher) WaitUntilIdle(ctx context.Context) error {
	if d == nil {
		return errors.New("dispatcher is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for {
		if d.isIdle() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Wait blocks until the dispatch loop exits.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	<-d.done
}

func (d *Dispatcher) run(ctx context.Context) {
	defer close(d.done)
	for {
		select {
		case <-ctx.Done():
			d.cancelCurrentRun()
			return
		case item := <-d.queue:
			d.process(ctx, item)
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, item envelope) {
	if item.msg == nil || item.writer == nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.setCurrentRun(cancel)
	// Cleared only after any failure reply is delivered, so WaitUntilIdle
	// callers observe the full exchange.
	defer d.clearCurrentRun()
	err := d.handler.HandleMessage(runCtx, item.writer, item.msg)
	cancel()

	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	logging.Logger().Error("message handling failed", "session_key", item.msg.SessionKey, "err", err)
	if writeErr := item.writer.WriteMessage(ctx, handlerFailureReply); writeErr != nil {
		logging.Logger().Warn("failed to deliver error reply", "err", writeErr)
	}
}

func (d *Dispatcher) rootContext() (context.Context, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.root, d.started
}

func (d *Dispatcher) setCurrentRun(cancel context.CancelFunc) {
	d.mu.Lock()
	d.currentRun = cancel
	d.mu.Unlock()
}

func (d *Dispatcher) clearCurrentRun() {
	d.mu.Lock()
	d.currentRun = nil
	d.mu.Unlock()
}

func (d *Dispatcher) cancelCurrentRun() {
	d.mu.Lock()
	cancel := d.currentRun
	d.currentRun = nil
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

func (d *Dispatcher) isIdle() bool {
	d.mu.Lock()
	running := d.currentRun != nil
	started := d.started
	d.mu.Unlock()

	if !started {
		return true
	}
	return !running && len(d.queue) == 0
}
