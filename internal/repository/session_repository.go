package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"pomodoro/bot/internal/model"
)

type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, session *model.PomodoroSession) error {
	_, err := r.db.ExecContext(
		ctx,
		`INSERT INTO pomodoro_sessions (
			id, user_id, work_minutes, break_minutes, started_at, ended_at,
			completed, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID,
		session.UserID,
		session.WorkMinutes,
		session.BreakMinutes,
		formatTime(session.StartedAt),
		nullTime(session.EndedAt),
		session.Completed,
		formatTime(session.CreatedAt),
		formatTime(session.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (r *SessionRepository) GetByID(ctx context.Context, sessionID string) (*model.PomodoroSession, error) {
	row := r.db.QueryRowContext(
		ctx,
		`SELECT id, user_id, work_minutes, break_minutes, started_at, ended_at,
		        completed, created_at, updated_at
		 FROM pomodoro_sessions
		 WHERE id = ?`,
		sessionID,
	)
	return scanPomodoroSession(row)
}

// IncrementCompleted records one finished work phase at updatedAt. The update
// is a single statement so concurrent increments never lose a count.
func (r *SessionRepository) IncrementCompleted(ctx context.Context, sessionID string, updatedAt time.Time) error {
	result, err := r.db.ExecContext(
		ctx,
		`UPDATE pomodoro_sessions
		 SET completed = completed + 1,
		     updated_at = ?
		 WHERE id = ?`,
		formatTime(updatedAt),
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("increment completed: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("increment completed rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// SumCompletedForDay sums completed work phases of sessions whose start falls
// on day's calendar date, evaluated in day's location.
func (r *SessionRepository) SumCompletedForDay(ctx context.Context, userID string, day time.Time) (int, error) {
	start, end := dayBounds(day)
	var total int
	err := r.db.QueryRowContext(
		ctx,
		`SELECT COALESCE(SUM(completed), 0)
		 FROM pomodoro_sessions
		 WHERE user_id = ?
		   AND started_at >= ?
		   AND started_at < ?`,
		userID,
		formatTime(start),
		formatTime(end),
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum completed: %w", err)
	}
	return total, nil
}

// CloseOpenBefore sets ended_at on every open session started before cutoff.
func (r *SessionRepository) CloseOpenBefore(ctx context.Context, cutoff, endedAt time.Time) (int64, error) {
	stamp := formatTime(endedAt)
	result, err := r.db.ExecContext(
		ctx,
		`UPDATE pomodoro_sessions
		 SET ended_at = ?,
		     updated_at = ?
		 WHERE ended_at IS NULL
		   AND started_at < ?`,
		stamp,
		stamp,
		formatTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("close open sessions: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("close open sessions rows: %w", err)
	}
	return affected, nil
}

func (r *SessionRepository) ListByUser(ctx context.Context, userID string, limit int) ([]model.PomodoroSession, error) {
	rows, err := r.db.QueryContext(
		ctx,
		`SELECT id, user_id, work_minutes, break_minutes, started_at, ended_at,
		        completed, created_at, updated_at
		 FROM pomodoro_sessions
		 WHERE user_id = ?
		 ORDER BY started_at DESC
		 LIMIT ?`,
		userID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]model.PomodoroSession, 0, limit)
	for rows.Next() {
		session, scanErr := scanPomodoroSession(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		sessions = append(sessions, *session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	return sessions, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPomodoroSession(s scanner) (*model.PomodoroSession, error) {
	session := model.PomodoroSession{}
	var startedAt string
	var endedAt sql.NullString
	var createdAt string
	var updatedAt string
	err := s.Scan(
		&session.ID,
		&session.UserID,
		&session.WorkMinutes,
		&session.BreakMinutes,
		&startedAt,
		&endedAt,
		&session.Completed,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}

	parsedStartedAt, err := parseTime(startedAt)
	if err != nil {
		return nil, fmt.Errorf("parse session started_at: %w", err)
	}
	session.StartedAt = parsedStartedAt

	if endedAt.Valid {
		parsedEndedAt, parseErr := parseTime(endedAt.String)
		if parseErr != nil {
			return nil, fmt.Errorf("parse session ended_at: %w", parseErr)
		}
		session.EndedAt = &parsedEndedAt
	}

	parsedCreatedAt, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse session created_at: %w", err)
	}
	session.CreatedAt = parsedCreatedAt

	parsedUpdatedAt, err := parseTime(updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse session updated_at: %w", err)
	}
	session.UpdatedAt = parsedUpdatedAt

	return &session, nil
}
