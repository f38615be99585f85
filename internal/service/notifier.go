package service

import "context"

type NoticeKind int

const (
	NoticeWorkStarted NoticeKind = iota + 1
	NoticeBreakStarted
	NoticeNextRound
	NoticeCycleEnded
)

func (k NoticeKind) String() string {
	switch k {
	case NoticeWorkStarted:
		return "work_started"
	case NoticeBreakStarted:
		return "break_started"
	case NoticeNextRound:
		return "next_round"
	case NoticeCycleEnded:
		return "cycle_ended"
	default:
		return "unknown"
	}
}

// Notice is a message the engine asks the chat surface to deliver.
// BreakStarted offers a skip action; NextRound offers yes/no actions for SessionID.
type Notice struct {
	Kind         NoticeKind
	UserID       int64
	ChatID       int64
	SessionID    string
	WorkMinutes  int
	BreakMinutes int
}

// MessageRef identifies a delivered message so its actions can be removed later.
type MessageRef struct {
	ChatID    int64
	MessageID string
}

func (r MessageRef) IsZero() bool {
	return r.MessageID == ""
}

type Notifier interface {
	Notify(ctx context.Context, notice Notice) (MessageRef, error)
	// Dismiss removes the actions attached to a previously delivered message.
	Dismiss(ctx context.Context, ref MessageRef) error
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Notice) (MessageRef, error) { return MessageRef{}, nil }

func (nopNotifier) Dismiss(context.Context, MessageRef) error { return nil }
