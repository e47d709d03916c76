package channels

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/lectern-ai/lectern/internal/logging"
	"github.com/lectern-ai/lectern/internal/runtime"
)

type telegramSendMessageFunc func(context.Context, *bot.SendMessageParams) (*models.Message, error)
type telegramSendChatActionFunc func(context.Context, *bot.SendChatActionParams) (bool, error)

var _ runtime.Listener = (*TelegramListener)(nil)

// TelegramListener receives Telegram updates over long polling and dispatches
// them to the handler. Each chat id becomes the session key, so every chat
// carries its own conversation history.
type TelegramListener struct {
	token string

	sendMessage    telegramSendMessageFunc
	sendChatAction telegramSendChatActionFunc
}

// NewTelegram creates a Telegram listener over one bot token.
func NewTelegram(token string) *TelegramListener {
	return &TelegramListener{token: token}
}

// Listen starts long-polling Telegram and dispatches inbound messages until
// ctx is canceled.
func (t *TelegramListener) Listen(ctx context.Context, handler runtime.Handler) error {
	if handler == nil {
		return errors.New("handler is required")
	}
	if strings.TrimSpace(t.token) == "" {
		return errors.New("telegram token is required")
	}

	dispatchCtx, cancelDispatch := context.WithCancel(ctx)
	dispatcher := runtime.NewDispatcher(&telegramTypingHandler{listener: t, handler: handler}, defaultDispatchQueue)
	defaultHandler := func(updateCtx context.Context, _ *bot.Bot, update *models.Update) {
		if update == nil || update.Message == nil || update.Message.From == nil {
			return
		}
		t.handleInboundMessage(updateCtx, dispatcher, update.Message)
	}

	b, err := bot.New(strings.TrimSpace(t.token), bot.WithDefaultHandler(defaultHandler))
	if err != nil {
		cancelDispatch()
		return fmt.Errorf("create telegram bot: %w", err)
	}

	me, err := b.GetMe(ctx)
	if err != nil {
		cancelDispatch()
		return fmt.Errorf("fetch telegram bot profile: %w", err)
	}
	logging.Logger().Info(fmt.Sprintf("Connected to Telegram Bot @%s", strings.TrimSpace(me.Username)))

	t.sendMessage = b.SendMessage
	t.sendChatAction = b.SendChatAction

	if err := dispatcher.Start(dispatchCtx); err != nil {
		cancelDispatch()
		return err
	}
	defer func() {
		cancelDispatch()
		dispatcher.Wait()
	}()

	go b.Start(ctx)
	<-ctx.Done()
	dispatcher.Stop()
	return nil
}

func (t *TelegramListener) handleInboundMessage(
	ctx context.Context,
	dispatcher *runtime.Dispatcher,
	msg *models.Message,
) {
	if msg == nil || msg.From == nil {
		return
	}

	username := strings.TrimSpace(msg.From.Username)
	text := msg.Text
	logging.Logger().Info(
		"telegram inbound message",
		"chat_id", msg.Chat.ID,
		"username", username,
		"text", messagePreview(text, 100),
	)

	writer := &telegramWriter{
		listener: t,
		chatID:   msg.Chat.ID,
		username: username,
	}
	inbound := &runtime.Message{
		Text:       strings.TrimSpace(text),
		SessionKey: strconv.FormatInt(msg.Chat.ID, 10),
	}
	if err := dispatcher.Enqueue(ctx, inbound, writer); err != nil {
		logging.Logger().Warn("telegram enqueue failed", "chat_id", msg.Chat.ID, "username", username, "err", err)
	}
}

type telegramWriter struct {
	listener *TelegramListener
	chatID   int64
	username string
}

func (w *telegramWriter) WriteMessage(ctx context.Context, text string) error {
	if w == nil || w.listener == nil {
		return errors.New("telegram sender is not configured")
	}
	return w.listener.sendChatMessage(ctx, w.chatID, text)
}

// telegramTypingHandler keeps the typing indicator alive while the wrapped
// handler answers. Commands resolve locally and skip it.
type telegramTypingHandler struct {
	listener *TelegramListener
	handler  runtime.Handler
}

func (h *telegramTypingHandler) HandleMessage(ctx context.Context, w runtime.ResponseWriter, msg *runtime.Message) error {
	if h.listener != nil {
		if writer, ok := w.(*telegramWriter); ok {
			if msg != nil && !strings.HasPrefix(strings.TrimSpace(msg.Text), "/") {
				go h.listener.runTypingIndicator(ctx, writer.chatID)
			}
		}
	}
	return h.handler.HandleMessage(ctx, w, msg)
}

func (t *TelegramListener) sendTelegramMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	send := t.sendMessage
	if send == nil {
		return nil, errors.New("telegram bot is not connected")
	}
	return send(ctx, params)
}

func (t *TelegramListener) sendChatMessage(ctx context.Context, chatID int64, text string) error {
	_, err := t.sendTelegramMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
	return err
}

func (t *TelegramListener) runTypingIndicator(ctx context.Context, chatID int64) {
	t.sendTypingAction(ctx, chatID)

	ticker := time.NewTicker(4 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.sendTypingAction(ctx, chatID)
		}
	}
}

func (t *TelegramListener) sendTypingAction(ctx context.Context, chatID int64) {
	send := t.sendChatAction
	if send == nil {
		return
	}
	send(ctx, &bot.SendChatActionParams{
		ChatID: chatID,
		Action: models.ChatActionTyping,
	})
}

func messagePreview(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
