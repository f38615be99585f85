package max

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	maxbot "github.com/max-messenger/max-bot-api-client-go"
	"github.com/max-messenger/max-bot-api-client-go/schemes"

	"pomodoro/bot/internal/bot"
	"pomodoro/bot/internal/logging"
	"pomodoro/bot/internal/model"
	"pomodoro/bot/internal/service"
)

// Client is a bot.Messenger over the MAX bot API. Sent messages are not
// tracked by id, so their buttons stay in place after use.
type Client struct {
	api    *maxbot.Api
	logger *slog.Logger
	wg     sync.WaitGroup
}

func New(token string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	api, err := maxbot.New(token)
	if err != nil {
		return nil, fmt.Errorf("connect max: %w", err)
	}
	return &Client{api: api, logger: logger.With("component", "max")}, nil
}

// BotName reports the bot's display name, confirming the token works.
func (c *Client) BotName(ctx context.Context) (string, error) {
	info, err := c.api.Bots.GetBot(ctx)
	if err != nil {
		return "", fmt.Errorf("max bot info: %w", err)
	}
	return info.Name, nil
}

func (c *Client) Send(ctx context.Context, chatID int64, text string, keyboard bot.Keyboard) (service.MessageRef, error) {
	msg := maxbot.NewMessage().SetChat(chatID).SetText(text)
	if len(keyboard) > 0 {
		builder := c.api.Messages.NewKeyboardBuilder()
		for _, row := range keyboard {
			keyboardRow := builder.AddRow()
			for _, button := range row {
				keyboardRow.AddCallback(button.Label, schemes.POSITIVE, button.Data)
			}
		}
		msg.AddKeyboard(builder)
	}
	if _, err := c.api.Messages.Send(ctx, msg); err != nil {
		return service.MessageRef{}, fmt.Errorf("max send: %w", err)
	}
	return service.MessageRef{ChatID: chatID}, nil
}

// EditText posts text as a new message.
func (c *Client) EditText(ctx context.Context, ref service.MessageRef, text string) error {
	_, err := c.Send(ctx, ref.ChatID, text, nil)
	return err
}

func (c *Client) RemoveKeyboard(context.Context, service.MessageRef) error {
	return nil
}

func (c *Client) AnswerCallback(context.Context, string) error {
	return nil
}

// Poll receives updates until ctx is done and waits for in-flight handlers.
func (c *Client) Poll(ctx context.Context, h bot.UpdateHandler) error {
	c.logger.Info("polling for updates")
	for raw := range c.api.GetUpdates(ctx) {
		update, ok := toUpdate(raw)
		if !ok {
			continue
		}
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			if err := h.Handle(ctx, update); err != nil {
				c.logger.Warn("update failed", "user_id", update.Sender.PlatformID, "error", err)
			}
		}()
	}
	c.wg.Wait()
	return nil
}

func toUpdate(raw interface{}) (bot.Update, bool) {
	switch upd := raw.(type) {
	case *schemes.MessageCreatedUpdate:
		sender := upd.Message.Sender
		return bot.Update{
			Sender: model.Participant{
				PlatformID: int64(sender.UserId),
				ChatID:     int64(upd.Message.Recipient.ChatId),
				Username:   sender.Username,
				FirstName:  sender.FirstName,
			},
			Text: upd.Message.Body.Text,
		}, true
	case *schemes.MessageCallbackUpdate:
		return bot.Update{
			Sender: model.Participant{
				PlatformID: int64(upd.Callback.GetUserID()),
				ChatID:     int64(upd.Callback.GetChatID()),
			},
			CallbackData: upd.Callback.Payload,
		}, true
	default:
		return bot.Update{}, false
	}
}
