package bot_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"pomodoro/bot/internal/bot"
	"pomodoro/bot/internal/config"
	"pomodoro/bot/internal/db"
	"pomodoro/bot/internal/model"
	"pomodoro/bot/internal/repository"
	"pomodoro/bot/internal/scheduler"
	"pomodoro/bot/internal/service"
)

type sentMessage struct {
	ref      service.MessageRef
	text     string
	keyboard bot.Keyboard
}

type fakeMessenger struct {
	mu       sync.Mutex
	seq      int
	sent     []sentMessage
	edited   map[string]string
	removed  []service.MessageRef
	answered []string
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{edited: map[string]string{}}
}

func (m *fakeMessenger) Send(_ context.Context, chatID int64, text string, keyboard bot.Keyboard) (service.MessageRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	ref := service.MessageRef{ChatID: chatID, MessageID: strconv.Itoa(m.seq)}
	m.sent = append(m.sent, sentMessage{ref: ref, text: text, keyboard: keyboard})
	return ref, nil
}

func (m *fakeMessenger) EditText(_ context.Context, ref service.MessageRef, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edited[ref.MessageID] = text
	return nil
}

func (m *fakeMessenger) RemoveKeyboard(_ context.Context, ref service.MessageRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed = append(m.removed, ref)
	return nil
}

func (m *fakeMessenger) AnswerCallback(_ context.Context, callbackID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.answered = append(m.answered, callbackID)
	return nil
}

func (m *fakeMessenger) lastSent(t *testing.T) sentMessage {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		t.Fatal("expected a message to be sent")
	}
	return m.sent[len(m.sent)-1]
}

type startCall struct {
	work, brk int
}

type fakeEngine struct {
	starts    []startCall
	nextRound []string
	skipped   int
	skipOK    bool
	ended     int
	today     int
	startErr  error
}

func (e *fakeEngine) StartTimer(_ context.Context, _ model.Participant, work, brk int) (*model.PomodoroSession, error) {
	e.starts = append(e.starts, startCall{work: work, brk: brk})
	if e.startErr != nil {
		return nil, e.startErr
	}
	return &model.PomodoroSession{ID: "s-1", WorkMinutes: work, BreakMinutes: brk}, nil
}

func (e *fakeEngine) SkipBreak(context.Context, int64) bool {
	e.skipped++
	return e.skipOK
}

func (e *fakeEngine) NextRound(_ context.Context, _ model.Participant, sessionID string) (*model.PomodoroSession, error) {
	e.nextRound = append(e.nextRound, sessionID)
	return &model.PomodoroSession{ID: "s-2"}, nil
}

func (e *fakeEngine) EndCycle(context.Context, model.Participant) (bool, error) {
	e.ended++
	return true, nil
}

func (e *fakeEngine) TodayCount(context.Context, int64) (int, error) {
	return e.today, nil
}

func (e *fakeEngine) Defaults() (int, int) {
	return 25, 5
}

var sender = model.Participant{PlatformID: 7, ChatID: 70, FirstName: "Ann"}

func newHandler(engine bot.TimerEngine, messenger bot.Messenger) *bot.Handler {
	presets := []config.Preset{{WorkMinutes: 25, BreakMinutes: 5}, {WorkMinutes: 50, BreakMinutes: 10}}
	return bot.NewHandler(engine, messenger, presets, nil)
}

func TestStartCommandOffersPresets(t *testing.T) {
	messenger := newFakeMessenger()
	h := newHandler(&fakeEngine{}, messenger)

	if err := h.Handle(context.Background(), bot.Update{Sender: sender, Text: "/start"}); err != nil {
		t.Fatalf("handle: %v", err)
	}

	msg := messenger.lastSent(t)
	if !strings.Contains(msg.text, "Ann") {
		t.Fatalf("expected greeting by name, got %q", msg.text)
	}
	if len(msg.keyboard) != 2 || len(msg.keyboard[0]) != 2 {
		t.Fatalf("expected preset row and custom row, got %+v", msg.keyboard)
	}
	if msg.keyboard[0][1].Data != "preset_50_10" || msg.keyboard[1][0].Data != bot.CallbackCustom {
		t.Fatalf("unexpected keyboard %+v", msg.keyboard)
	}
}

func TestPomodoroCommandFallsBackToDefaults(t *testing.T) {
	engine := &fakeEngine{}
	h := newHandler(engine, newFakeMessenger())

	for _, text := range []string{"/pomodoro 30 abc", "/pomodoro@FocusTimerBot -1 10", "/pomodoro"} {
		if err := h.Handle(context.Background(), bot.Update{Sender: sender, Text: text}); err != nil {
			t.Fatalf("handle %q: %v", text, err)
		}
	}

	want := []startCall{{30, 5}, {25, 10}, {25, 5}}
	if len(engine.starts) != len(want) {
		t.Fatalf("expected %d starts, got %+v", len(want), engine.starts)
	}
	for i := range want {
		if engine.starts[i] != want[i] {
			t.Fatalf("start %d: expected %+v, got %+v", i, want[i], engine.starts[i])
		}
	}
}

func TestPomodoroCommandReportsFailure(t *testing.T) {
	engine := &fakeEngine{startErr: service.ErrStopped}
	messenger := newFakeMessenger()
	h := newHandler(engine, messenger)

	err := h.Handle(context.Background(), bot.Update{Sender: sender, Text: "/pomodoro 25 5"})
	if !errors.Is(err, service.ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
	if !strings.Contains(messenger.lastSent(t).text, "Could not start") {
		t.Fatalf("expected failure reply, got %q", messenger.lastSent(t).text)
	}
}

func TestTodayCommand(t *testing.T) {
	messenger := newFakeMessenger()
	h := newHandler(&fakeEngine{today: 5}, messenger)

	if err := h.Handle(context.Background(), bot.Update{Sender: sender, Text: "/today"}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if got := messenger.lastSent(t).text; got != bot.TodayText(5) {
		t.Fatalf("unexpected reply %q", got)
	}
}

func TestPlainTextAndUnknownCommandsAreIgnored(t *testing.T) {
	engine := &fakeEngine{}
	messenger := newFakeMessenger()
	h := newHandler(engine, messenger)

	for _, text := range []string{"hello", "", "/unknown"} {
		if err := h.Handle(context.Background(), bot.Update{Sender: sender, Text: text}); err != nil {
			t.Fatalf("handle %q: %v", text, err)
		}
	}
	if len(messenger.sent) != 0 || len(engine.starts) != 0 {
		t.Fatalf("expected no effects, got sent=%d starts=%d", len(messenger.sent), len(engine.starts))
	}
}

func TestCallbacks(t *testing.T) {
	pressed := service.MessageRef{ChatID: 70, MessageID: "99"}

	t.Run("preset", func(t *testing.T) {
		engine := &fakeEngine{}
		messenger := newFakeMessenger()
		h := newHandler(engine, messenger)

		err := h.Handle(context.Background(), bot.Update{Sender: sender, CallbackID: "cb-1", CallbackData: "preset_50_10", Message: pressed})
		if err != nil {
			t.Fatalf("handle: %v", err)
		}
		if len(engine.starts) != 1 || engine.starts[0] != (startCall{50, 10}) {
			t.Fatalf("expected 50/10 start, got %+v", engine.starts)
		}
		if len(messenger.answered) != 1 || len(messenger.removed) != 1 {
			t.Fatalf("expected answered and keyboard removed, got %v %v", messenger.answered, messenger.removed)
		}
	})

	t.Run("malformed preset", func(t *testing.T) {
		engine := &fakeEngine{}
		messenger := newFakeMessenger()
		h := newHandler(engine, messenger)

		for _, data := range []string{"preset_0_x", "preset_153722868_5", "preset_25_1441"} {
			if err := h.Handle(context.Background(), bot.Update{Sender: sender, CallbackID: "cb", CallbackData: data}); err != nil {
				t.Fatalf("handle %s: %v", data, err)
			}
		}
		if len(engine.starts) != 0 || len(messenger.answered) != 3 {
			t.Fatalf("expected only acknowledgements, got starts=%v answered=%v", engine.starts, messenger.answered)
		}
	})

	t.Run("custom", func(t *testing.T) {
		messenger := newFakeMessenger()
		h := newHandler(&fakeEngine{}, messenger)

		if err := h.Handle(context.Background(), bot.Update{Sender: sender, CallbackID: "cb", CallbackData: bot.CallbackCustom, Message: pressed}); err != nil {
			t.Fatalf("handle: %v", err)
		}
		if !strings.Contains(messenger.edited["99"], "/pomodoro") {
			t.Fatalf("expected instructions edited into the message, got %q", messenger.edited["99"])
		}
	})

	t.Run("skip break", func(t *testing.T) {
		engine := &fakeEngine{skipOK: false}
		messenger := newFakeMessenger()
		h := newHandler(engine, messenger)

		if err := h.Handle(context.Background(), bot.Update{Sender: sender, CallbackID: "cb", CallbackData: bot.CallbackSkipBreak, Message: pressed}); err != nil {
			t.Fatalf("handle: %v", err)
		}
		if engine.skipped != 1 {
			t.Fatalf("expected skip to reach the engine, got %d", engine.skipped)
		}
		if len(messenger.removed) != 1 {
			t.Fatalf("stale skip button must be removed, got %v", messenger.removed)
		}
	})

	t.Run("next round yes", func(t *testing.T) {
		engine := &fakeEngine{}
		h := newHandler(engine, newFakeMessenger())

		if err := h.Handle(context.Background(), bot.Update{Sender: sender, CallbackID: "cb", CallbackData: "next_round_yes:abc"}); err != nil {
			t.Fatalf("handle: %v", err)
		}
		if err := h.Handle(context.Background(), bot.Update{Sender: sender, CallbackID: "cb", CallbackData: "next_round_yes"}); err != nil {
			t.Fatalf("handle bare yes: %v", err)
		}
		if len(engine.nextRound) != 2 || engine.nextRound[0] != "abc" || engine.nextRound[1] != "" {
			t.Fatalf("unexpected next round calls %v", engine.nextRound)
		}
	})

	t.Run("next round no", func(t *testing.T) {
		engine := &fakeEngine{}
		messenger := newFakeMessenger()
		h := newHandler(engine, messenger)

		if err := h.Handle(context.Background(), bot.Update{Sender: sender, CallbackID: "cb", CallbackData: bot.CallbackNextRoundNo, Message: pressed}); err != nil {
			t.Fatalf("handle: %v", err)
		}
		if engine.ended != 1 || len(messenger.removed) != 1 {
			t.Fatalf("expected cycle ended and keyboard removed, got ended=%d removed=%v", engine.ended, messenger.removed)
		}
	})
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	database, err := db.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close()
	})

	_, currentFile, _, _ := runtime.Caller(0)
	migrationsDir := filepath.Join(filepath.Dir(currentFile), "..", "..", "migrations")
	if _, err := db.RunMigrations(context.Background(), database, migrationsDir); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	return database
}

func TestConversationEndToEnd(t *testing.T) {
	database := openTestDB(t)
	messenger := newFakeMessenger()
	sched := scheduler.NewManual(time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC))
	timers := service.NewTimerService(
		repository.NewUserRepository(database),
		repository.NewSessionRepository(database),
		bot.NewPresenter(messenger),
		sched,
		service.TimerOptions{Clock: sched},
	)
	t.Cleanup(timers.Stop)
	h := newHandler(timers, messenger)
	ctx := context.Background()

	handle := func(u bot.Update) {
		t.Helper()
		if err := h.Handle(ctx, u); err != nil {
			t.Fatalf("handle %+v: %v", u, err)
		}
	}

	handle(bot.Update{Sender: sender, Text: "/pomodoro 25 5"})
	if got := messenger.lastSent(t).text; !strings.HasPrefix(got, "⏱") {
		t.Fatalf("expected work started message, got %q", got)
	}

	sched.Advance(25 * time.Minute)
	breakMsg := messenger.lastSent(t)
	if len(breakMsg.keyboard) != 1 || breakMsg.keyboard[0][0].Data != bot.CallbackSkipBreak {
		t.Fatalf("expected skip action on the break message, got %+v", breakMsg.keyboard)
	}

	handle(bot.Update{Sender: sender, CallbackID: "cb-1", CallbackData: bot.CallbackSkipBreak, Message: breakMsg.ref})
	prompt := messenger.lastSent(t)
	if len(prompt.keyboard) != 1 || !strings.HasPrefix(prompt.keyboard[0][0].Data, bot.CallbackNextRoundYes+":") {
		t.Fatalf("expected next round prompt carrying the session, got %+v", prompt.keyboard)
	}
	if len(messenger.removed) != 1 || messenger.removed[0] != breakMsg.ref {
		t.Fatalf("expected the skip action removed, got %v", messenger.removed)
	}

	handle(bot.Update{Sender: sender, CallbackID: "cb-2", CallbackData: prompt.keyboard[0][0].Data, Message: prompt.ref})
	if timers.Phase(sender.PlatformID) != service.PhaseWorking {
		t.Fatalf("expected a new work phase, got %v", timers.Phase(sender.PlatformID))
	}

	sched.Advance(25 * time.Minute)
	handle(bot.Update{Sender: sender, Text: "/today"})
	if got := messenger.lastSent(t).text; got != bot.TodayText(2) {
		t.Fatalf("expected two pomodoros today, got %q", got)
	}
}
