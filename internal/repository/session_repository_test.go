package repository_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"pomodoro/bot/internal/db"
	"pomodoro/bot/internal/model"
	"pomodoro/bot/internal/repository"
)

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

func createUser(t *testing.T, users *repository.UserRepository, id string, platformID int64) *model.User {
	t.Helper()
	now := time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC)
	user := &model.User{
		ID:         id,
		PlatformID: platformID,
		FirstName:  "Ann",
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := users.Create(context.Background(), user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

func createSession(t *testing.T, sessions *repository.SessionRepository, id, userID string, startedAt time.Time, completed int) {
	t.Helper()
	session := &model.PomodoroSession{
		ID:           id,
		UserID:       userID,
		WorkMinutes:  25,
		BreakMinutes: 5,
		StartedAt:    startedAt,
		Completed:    completed,
		CreatedAt:    startedAt,
		UpdatedAt:    startedAt,
	}
	if err := sessions.Create(context.Background(), session); err != nil {
		t.Fatalf("create session %s: %v", id, err)
	}
}

func TestUserLookupAndBackfill(t *testing.T) {
	database := openTestDB(t)
	users := repository.NewUserRepository(database)
	ctx := context.Background()

	if _, err := users.FindByPlatformID(ctx, 42); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown user, got %v", err)
	}

	user := createUser(t, users, "u-1", 42)
	found, err := users.FindByPlatformID(ctx, 42)
	if err != nil {
		t.Fatalf("find user: %v", err)
	}
	if found.ID != user.ID || found.Timezone != model.DefaultTimezone {
		t.Fatalf("unexpected user %+v", found)
	}
	if found.Username != "" {
		t.Fatalf("expected empty username, got %q", found.Username)
	}

	found.Username = "ann_k"
	found.FirstName = "Someone Else"
	found.LastName = "K"
	if err := users.BackfillNames(ctx, found); err != nil {
		t.Fatalf("backfill: %v", err)
	}
	refreshed, err := users.FindByPlatformID(ctx, 42)
	if err != nil {
		t.Fatalf("find after backfill: %v", err)
	}
	if refreshed.Username != "ann_k" || refreshed.LastName != "K" {
		t.Fatalf("expected empty fields backfilled, got %+v", refreshed)
	}
	if refreshed.FirstName != "Ann" {
		t.Fatalf("stored first name must not be overwritten, got %q", refreshed.FirstName)
	}
}

func TestIncrementCompleted(t *testing.T) {
	database := openTestDB(t)
	users := repository.NewUserRepository(database)
	sessions := repository.NewSessionRepository(database)
	ctx := context.Background()

	user := createUser(t, users, "u-1", 1)
	createSession(t, sessions, "s-1", user.ID, time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC), 0)

	finishedAt := time.Date(2026, 10, 15, 9, 50, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		if err := sessions.IncrementCompleted(ctx, "s-1", finishedAt); err != nil {
			t.Fatalf("increment: %v", err)
		}
	}
	session, err := sessions.GetByID(ctx, "s-1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if session.Completed != 2 {
		t.Fatalf("expected completed 2, got %d", session.Completed)
	}
	if !session.UpdatedAt.Equal(finishedAt) {
		t.Fatalf("expected updated_at %v, got %v", finishedAt, session.UpdatedAt)
	}
	if !session.IsOpen() {
		t.Fatal("session must stay open after increments")
	}

	if err := sessions.IncrementCompleted(ctx, "missing", finishedAt); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing session, got %v", err)
	}
}

func TestSumCompletedForDay(t *testing.T) {
	database := openTestDB(t)
	users := repository.NewUserRepository(database)
	sessions := repository.NewSessionRepository(database)
	ctx := context.Background()

	ann := createUser(t, users, "u-1", 1)
	bob := createUser(t, users, "u-2", 2)

	day := time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)
	createSession(t, sessions, "yesterday", ann.ID, day.Add(-time.Minute), 5)
	createSession(t, sessions, "morning", ann.ID, day, 2)
	createSession(t, sessions, "evening", ann.ID, day.Add(23*time.Hour+59*time.Minute), 1)
	createSession(t, sessions, "tomorrow", ann.ID, day.Add(24*time.Hour), 7)
	createSession(t, sessions, "other-user", bob.ID, day.Add(time.Hour), 4)

	total, err := sessions.SumCompletedForDay(ctx, ann.ID, day.Add(15*time.Hour))
	if err != nil {
		t.Fatalf("sum: %v", err)
	}
	if total != 3 {
		t.Fatalf("expected 3 completed today, got %d", total)
	}

	total, err = sessions.SumCompletedForDay(ctx, "nobody", day)
	if err != nil {
		t.Fatalf("sum for unknown user: %v", err)
	}
	if total != 0 {
		t.Fatalf("expected 0 for unknown user, got %d", total)
	}
}

func TestCloseOpenBefore(t *testing.T) {
	database := openTestDB(t)
	users := repository.NewUserRepository(database)
	sessions := repository.NewSessionRepository(database)
	ctx := context.Background()

	user := createUser(t, users, "u-1", 1)
	cutoff := time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)
	for _, id := range []string{"old-1", "old-2", "old-3"} {
		createSession(t, sessions, id, user.ID, cutoff.Add(-2*time.Hour), 1)
	}
	createSession(t, sessions, "fresh", user.ID, cutoff.Add(time.Minute), 0)

	endedAt := cutoff.Add(5 * time.Second)
	closed, err := sessions.CloseOpenBefore(ctx, cutoff, endedAt)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closed != 3 {
		t.Fatalf("expected 3 sessions closed, got %d", closed)
	}

	for _, id := range []string{"old-1", "old-2", "old-3"} {
		session, err := sessions.GetByID(ctx, id)
		if err != nil {
			t.Fatalf("get %s: %v", id, err)
		}
		if session.EndedAt == nil || !session.EndedAt.Equal(endedAt) {
			t.Fatalf("expected %s closed at %v, got %v", id, endedAt, session.EndedAt)
		}
	}
	fresh, err := sessions.GetByID(ctx, "fresh")
	if err != nil {
		t.Fatalf("get fresh: %v", err)
	}
	if !fresh.IsOpen() {
		t.Fatal("session started after the cutoff must stay open")
	}

	closed, err = sessions.CloseOpenBefore(ctx, cutoff, endedAt)
	if err != nil {
		t.Fatalf("second close: %v", err)
	}
	if closed != 0 {
		t.Fatalf("expected second sweep to close nothing, got %d", closed)
	}

	history, err := sessions.ListByUser(ctx, user.ID, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(history) != 4 || history[0].ID != "fresh" {
		t.Fatalf("expected newest-first history of 4, got %+v", history)
	}
}
