package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"pomodoro/bot/internal/bot"
	"pomodoro/bot/internal/logging"
	"pomodoro/bot/internal/model"
	"pomodoro/bot/internal/service"
)

const pollTimeoutSeconds = 60

// Client is a bot.Messenger over the Telegram Bot API.
type Client struct {
	api    *tgbotapi.BotAPI
	logger *slog.Logger
	wg     sync.WaitGroup
}

func New(token string, debug bool, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connect telegram: %w", err)
	}
	api.Debug = debug
	logger = logger.With("component", "telegram")
	logger.Info("authorized", "bot", api.Self.UserName)
	return &Client{api: api, logger: logger}, nil
}

func (c *Client) Send(_ context.Context, chatID int64, text string, keyboard bot.Keyboard) (service.MessageRef, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	if len(keyboard) > 0 {
		msg.ReplyMarkup = inlineKeyboard(keyboard)
	}
	sent, err := c.api.Send(msg)
	if err != nil {
		return service.MessageRef{}, fmt.Errorf("telegram send: %w", err)
	}
	return service.MessageRef{ChatID: chatID, MessageID: strconv.Itoa(sent.MessageID)}, nil
}

func (c *Client) EditText(_ context.Context, ref service.MessageRef, text string) error {
	messageID, err := strconv.Atoi(ref.MessageID)
	if err != nil {
		return fmt.Errorf("telegram message id %q: %w", ref.MessageID, err)
	}
	if _, err := c.api.Request(tgbotapi.NewEditMessageText(ref.ChatID, messageID, text)); err != nil {
		return fmt.Errorf("telegram edit text: %w", err)
	}
	return nil
}

func (c *Client) RemoveKeyboard(_ context.Context, ref service.MessageRef) error {
	messageID, err := strconv.Atoi(ref.MessageID)
	if err != nil {
		return fmt.Errorf("telegram message id %q: %w", ref.MessageID, err)
	}
	empty := tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}}
	if _, err := c.api.Request(tgbotapi.NewEditMessageReplyMarkup(ref.ChatID, messageID, empty)); err != nil {
		return fmt.Errorf("telegram remove keyboard: %w", err)
	}
	return nil
}

func (c *Client) AnswerCallback(_ context.Context, callbackID string) error {
	if _, err := c.api.Request(tgbotapi.NewCallback(callbackID, "")); err != nil {
		return fmt.Errorf("telegram answer callback: %w", err)
	}
	return nil
}

// Poll receives updates by long polling until ctx is done. Each update is
// handled on its own goroutine; Poll waits for them before returning.
func (c *Client) Poll(ctx context.Context, h bot.UpdateHandler) error {
	if _, err := c.api.Request(tgbotapi.DeleteWebhookConfig{DropPendingUpdates: true}); err != nil {
		return fmt.Errorf("telegram delete webhook: %w", err)
	}

	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = pollTimeoutSeconds
	cfg.AllowedUpdates = []string{"message", "callback_query"}
	updates := c.api.GetUpdatesChan(cfg)
	c.logger.Info("polling for updates")

	for {
		select {
		case <-ctx.Done():
			c.api.StopReceivingUpdates()
			c.wg.Wait()
			return nil
		case raw, ok := <-updates:
			if !ok {
				c.wg.Wait()
				return nil
			}
			c.dispatch(ctx, h, raw)
		}
	}
}

// SetWebhook registers url with Telegram for push delivery.
func (c *Client) SetWebhook(url string) error {
	wh, err := tgbotapi.NewWebhook(url)
	if err != nil {
		return fmt.Errorf("telegram webhook config: %w", err)
	}
	wh.DropPendingUpdates = true
	wh.AllowedUpdates = []string{"message", "callback_query"}
	if _, err := c.api.Request(wh); err != nil {
		return fmt.Errorf("telegram set webhook: %w", err)
	}
	c.logger.Info("webhook registered", "url", url)
	return nil
}

// Webhook returns a receiver that feeds pushed updates to h.
func (c *Client) Webhook(h bot.UpdateHandler) *Webhook {
	return &Webhook{client: c, handler: h}
}

type Webhook struct {
	client  *Client
	handler bot.UpdateHandler
}

// HandleWebhook decodes one pushed update and handles it. Only a malformed
// request is reported as an error; handler failures are logged.
func (w *Webhook) HandleWebhook(ctx context.Context, r *http.Request) error {
	raw, err := w.client.api.HandleUpdate(r)
	if err != nil {
		return fmt.Errorf("decode telegram update: %w", err)
	}
	update, ok := toUpdate(*raw)
	if !ok {
		return nil
	}
	if err := w.handler.Handle(ctx, update); err != nil {
		w.client.logger.Warn("update failed", "user_id", update.Sender.PlatformID, "error", err)
	}
	return nil
}

func (c *Client) dispatch(ctx context.Context, h bot.UpdateHandler, raw tgbotapi.Update) {
	update, ok := toUpdate(raw)
	if !ok {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := h.Handle(ctx, update); err != nil {
			c.logger.Warn("update failed", "user_id", update.Sender.PlatformID, "error", err)
		}
	}()
}

func toUpdate(raw tgbotapi.Update) (bot.Update, bool) {
	switch {
	case raw.CallbackQuery != nil:
		query := raw.CallbackQuery
		if query.From == nil {
			return bot.Update{}, false
		}
		update := bot.Update{
			Sender:       participant(query.From, 0),
			CallbackID:   query.ID,
			CallbackData: query.Data,
		}
		if query.Message != nil && query.Message.Chat != nil {
			update.Sender.ChatID = query.Message.Chat.ID
			update.Message = service.MessageRef{
				ChatID:    query.Message.Chat.ID,
				MessageID: strconv.Itoa(query.Message.MessageID),
			}
		}
		return update, true
	case raw.Message != nil:
		msg := raw.Message
		if msg.From == nil || msg.Chat == nil {
			return bot.Update{}, false
		}
		return bot.Update{
			Sender: participant(msg.From, msg.Chat.ID),
			Text:   msg.Text,
		}, true
	default:
		return bot.Update{}, false
	}
}

func participant(user *tgbotapi.User, chatID int64) model.Participant {
	if chatID == 0 {
		chatID = user.ID
	}
	return model.Participant{
		PlatformID: user.ID,
		ChatID:     chatID,
		Username:   user.UserName,
		FirstName:  user.FirstName,
		LastName:   user.LastName,
	}
}

func inlineKeyboard(keyboard bot.Keyboard) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(keyboard))
	for _, row := range keyboard {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, button := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(button.Label, button.Data))
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
