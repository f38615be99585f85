package bot

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"pomodoro/bot/internal/config"
	"pomodoro/bot/internal/logging"
	"pomodoro/bot/internal/model"
	"pomodoro/bot/internal/service"
)

// Update is one incoming message or button press, independent of platform.
type Update struct {
	Sender       model.Participant
	Text         string
	CallbackID   string
	CallbackData string
	// Message is the message whose button was pressed.
	Message service.MessageRef
}

func (u Update) IsCallback() bool {
	return u.CallbackID != "" || u.CallbackData != ""
}

// UpdateHandler is what transports deliver updates to.
type UpdateHandler interface {
	Handle(ctx context.Context, u Update) error
}

type TimerEngine interface {
	StartTimer(ctx context.Context, p model.Participant, workMinutes, breakMinutes int) (*model.PomodoroSession, error)
	SkipBreak(ctx context.Context, userID int64) bool
	NextRound(ctx context.Context, p model.Participant, sessionID string) (*model.PomodoroSession, error)
	EndCycle(ctx context.Context, p model.Participant) (bool, error)
	TodayCount(ctx context.Context, userID int64) (int, error)
	Defaults() (workMinutes, breakMinutes int)
}

// Handler turns updates into timer operations and replies.
type Handler struct {
	engine    TimerEngine
	messenger Messenger
	presets   []config.Preset
	logger    *slog.Logger
}

func NewHandler(engine TimerEngine, messenger Messenger, presets []config.Preset, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Handler{
		engine:    engine,
		messenger: messenger,
		presets:   presets,
		logger:    logger.With("component", "bot"),
	}
}

// Handle processes one update. Errors are returned for logging by the
// transport; a failing update never affects other users.
func (h *Handler) Handle(ctx context.Context, u Update) error {
	if u.IsCallback() {
		return h.handleCallback(ctx, u)
	}

	name, args, ok := parseCommand(u.Text)
	if !ok {
		return nil
	}
	h.logger.Debug("command", "user_id", u.Sender.PlatformID, "command", name)

	switch name {
	case "start":
		workMinutes, breakMinutes := h.engine.Defaults()
		_, err := h.messenger.Send(ctx, u.Sender.ChatID,
			greetingText(u.Sender.FirstName, workMinutes, breakMinutes), presetKeyboard(h.presets))
		return err
	case "help":
		_, err := h.messenger.Send(ctx, u.Sender.ChatID, helpText, nil)
		return err
	case "pomodoro":
		defaultWork, defaultBreak := h.engine.Defaults()
		workMinutes, breakMinutes := ParseDurations(args, defaultWork, defaultBreak)
		return h.start(ctx, u.Sender, workMinutes, breakMinutes)
	case "today":
		count, err := h.engine.TodayCount(ctx, u.Sender.PlatformID)
		if err != nil {
			return err
		}
		_, err = h.messenger.Send(ctx, u.Sender.ChatID, TodayText(count), nil)
		return err
	default:
		return nil
	}
}

func (h *Handler) handleCallback(ctx context.Context, u Update) error {
	if u.CallbackID != "" {
		if err := h.messenger.AnswerCallback(ctx, u.CallbackID); err != nil {
			h.logger.Warn("answer callback failed", "user_id", u.Sender.PlatformID, "error", err)
		}
	}

	data := u.CallbackData
	h.logger.Debug("callback", "user_id", u.Sender.PlatformID, "data", data)

	switch {
	case strings.HasPrefix(data, CallbackPresetPrefix):
		workMinutes, breakMinutes, ok := parsePreset(data)
		if !ok {
			return nil
		}
		if err := h.start(ctx, u.Sender, workMinutes, breakMinutes); err != nil {
			return err
		}
		return h.removeKeyboard(ctx, u)
	case data == CallbackCustom:
		if u.Message.IsZero() {
			_, err := h.messenger.Send(ctx, u.Sender.ChatID, customText, nil)
			return err
		}
		return h.messenger.EditText(ctx, u.Message, customText)
	case data == CallbackSkipBreak:
		if !h.engine.SkipBreak(ctx, u.Sender.PlatformID) {
			return h.removeKeyboard(ctx, u)
		}
		return nil
	case data == CallbackNextRoundYes || strings.HasPrefix(data, CallbackNextRoundYes+":"):
		sessionID := strings.TrimPrefix(strings.TrimPrefix(data, CallbackNextRoundYes), ":")
		if _, err := h.engine.NextRound(ctx, u.Sender, sessionID); err != nil {
			h.replyStartFailed(ctx, u.Sender, err)
			return err
		}
		return h.removeKeyboard(ctx, u)
	case data == CallbackNextRoundNo:
		if _, err := h.engine.EndCycle(ctx, u.Sender); err != nil {
			return err
		}
		return h.removeKeyboard(ctx, u)
	default:
		return nil
	}
}

func (h *Handler) start(ctx context.Context, p model.Participant, workMinutes, breakMinutes int) error {
	if _, err := h.engine.StartTimer(ctx, p, workMinutes, breakMinutes); err != nil {
		h.replyStartFailed(ctx, p, err)
		return err
	}
	return nil
}

func (h *Handler) replyStartFailed(ctx context.Context, p model.Participant, cause error) {
	if errors.Is(cause, context.Canceled) {
		return
	}
	if _, err := h.messenger.Send(ctx, p.ChatID, startFailedText, nil); err != nil {
		h.logger.Warn("reply failed", "user_id", p.PlatformID, "error", err)
	}
}

func (h *Handler) removeKeyboard(ctx context.Context, u Update) error {
	if u.Message.IsZero() {
		return nil
	}
	return h.messenger.RemoveKeyboard(ctx, u.Message)
}
