package service_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"testing"
	"time"

	"pomodoro/bot/internal/db"
	"pomodoro/bot/internal/model"
	"pomodoro/bot/internal/repository"
	"pomodoro/bot/internal/scheduler"
	"pomodoro/bot/internal/service"
)

var testStart = time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

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

type recordingNotifier struct {
	mu        sync.Mutex
	notices   []service.Notice
	dismissed []service.MessageRef
	seq       int
	err       error
}

func (n *recordingNotifier) Notify(_ context.Context, notice service.Notice) (service.MessageRef, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
	if n.err != nil {
		return service.MessageRef{}, n.err
	}
	n.seq++
	return service.MessageRef{ChatID: notice.ChatID, MessageID: strconv.Itoa(n.seq)}, nil
}

func (n *recordingNotifier) Dismiss(_ context.Context, ref service.MessageRef) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dismissed = append(n.dismissed, ref)
	return n.err
}

func (n *recordingNotifier) kinds(userID int64) []service.NoticeKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	var kinds []service.NoticeKind
	for _, notice := range n.notices {
		if notice.UserID == userID {
			kinds = append(kinds, notice.Kind)
		}
	}
	return kinds
}

func (n *recordingNotifier) last(userID int64) (service.Notice, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.notices) - 1; i >= 0; i-- {
		if n.notices[i].UserID == userID {
			return n.notices[i], true
		}
	}
	return service.Notice{}, false
}

func (n *recordingNotifier) dismissedCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.dismissed)
}

// failingSessions breaks IncrementCompleted for the listed sessions.
type failingSessions struct {
	*repository.SessionRepository
	mu      sync.Mutex
	failFor map[string]bool
}

func (f *failingSessions) fail(sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failFor[sessionID] = true
}

func (f *failingSessions) IncrementCompleted(ctx context.Context, sessionID string, updatedAt time.Time) error {
	f.mu.Lock()
	broken := f.failFor[sessionID]
	f.mu.Unlock()
	if broken {
		return errors.New("disk I/O error")
	}
	return f.SessionRepository.IncrementCompleted(ctx, sessionID, updatedAt)
}

type engine struct {
	svc      *service.TimerService
	sched    *scheduler.Manual
	notifier *recordingNotifier
	users    *repository.UserRepository
	sessions *repository.SessionRepository
	failing  *failingSessions
}

func newEngine(t *testing.T) *engine {
	t.Helper()

	database := openTestDB(t)
	sessions := repository.NewSessionRepository(database)
	e := &engine{
		sched:    scheduler.NewManual(testStart),
		notifier: &recordingNotifier{},
		users:    repository.NewUserRepository(database),
		sessions: sessions,
		failing:  &failingSessions{SessionRepository: sessions, failFor: map[string]bool{}},
	}
	e.svc = service.NewTimerService(e.users, e.failing, e.notifier, e.sched, service.TimerOptions{
		Clock:               e.sched,
		DefaultWorkMinutes:  25,
		DefaultBreakMinutes: 5,
	})
	t.Cleanup(e.svc.Stop)
	return e
}

func participant(id int64) model.Participant {
	return model.Participant{
		PlatformID: id,
		ChatID:     id * 10,
		Username:   "user" + strconv.FormatInt(id, 10),
		FirstName:  "User",
	}
}

func (e *engine) completed(t *testing.T, sessionID string) int {
	t.Helper()
	session, err := e.sessions.GetByID(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("get session %s: %v", sessionID, err)
	}
	return session.Completed
}

func assertKinds(t *testing.T, got []service.NoticeKind, want ...service.NoticeKind) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected notices %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected notices %v, got %v", want, got)
		}
	}
}
