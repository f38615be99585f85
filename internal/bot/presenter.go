package bot

import (
	"context"
	"fmt"

	"pomodoro/bot/internal/service"
)

type Button struct {
	Label string
	Data  string
}

// Keyboard is a grid of inline actions, one slice per row.
type Keyboard [][]Button

// Messenger is the part of a chat platform the bot needs.
type Messenger interface {
	Send(ctx context.Context, chatID int64, text string, keyboard Keyboard) (service.MessageRef, error)
	EditText(ctx context.Context, ref service.MessageRef, text string) error
	RemoveKeyboard(ctx context.Context, ref service.MessageRef) error
	AnswerCallback(ctx context.Context, callbackID string) error
}

// Presenter renders timer notices as chat messages.
type Presenter struct {
	messenger Messenger
}

func NewPresenter(messenger Messenger) *Presenter {
	return &Presenter{messenger: messenger}
}

func (p *Presenter) Notify(ctx context.Context, notice service.Notice) (service.MessageRef, error) {
	text, keyboard, err := renderNotice(notice)
	if err != nil {
		return service.MessageRef{}, err
	}
	return p.messenger.Send(ctx, notice.ChatID, text, keyboard)
}

func (p *Presenter) Dismiss(ctx context.Context, ref service.MessageRef) error {
	if ref.IsZero() {
		return nil
	}
	return p.messenger.RemoveKeyboard(ctx, ref)
}

func renderNotice(notice service.Notice) (string, Keyboard, error) {
	switch notice.Kind {
	case service.NoticeWorkStarted:
		return workStartedText(notice.WorkMinutes, notice.BreakMinutes), nil, nil
	case service.NoticeBreakStarted:
		return breakStartedText(notice.BreakMinutes), skipKeyboard(), nil
	case service.NoticeNextRound:
		return nextRoundText, nextRoundKeyboard(notice.SessionID), nil
	case service.NoticeCycleEnded:
		return cycleEndedText, nil, nil
	default:
		return "", nil, fmt.Errorf("unknown notice kind %d", notice.Kind)
	}
}
