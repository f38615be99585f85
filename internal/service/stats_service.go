package service

import (
	"context"
	"errors"

	apperrors "pomodoro/bot/internal/errors"
	"pomodoro/bot/internal/model"
	"pomodoro/bot/internal/repository"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// StatsService answers the admin API's per-user questions.
type StatsService struct {
	users    *repository.UserRepository
	sessions *repository.SessionRepository
	timers   *TimerService
}

func NewStatsService(users *repository.UserRepository, sessions *repository.SessionRepository, timers *TimerService) *StatsService {
	return &StatsService{users: users, sessions: sessions, timers: timers}
}

type UserToday struct {
	PlatformID int64 `json:"platformId"`
	Completed  int   `json:"completed"`
	Phase      Phase `json:"phase"`
}

func (s *StatsService) Today(ctx context.Context, platformID int64) (*UserToday, *apperrors.APIError) {
	completed, err := s.timers.TodayCount(ctx, platformID)
	if err != nil {
		return nil, apperrors.Internal("failed to count today's pomodoros")
	}
	return &UserToday{
		PlatformID: platformID,
		Completed:  completed,
		Phase:      s.timers.Phase(platformID),
	}, nil
}

func (s *StatsService) History(ctx context.Context, platformID int64, limit int) ([]model.PomodoroSession, *apperrors.APIError) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	user, err := s.users.FindByPlatformID(ctx, platformID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.UserNotFound(platformID)
	}
	if err != nil {
		return nil, apperrors.Internal("failed to query user")
	}

	sessions, err := s.sessions.ListByUser(ctx, user.ID, limit)
	if err != nil {
		return nil, apperrors.Internal("failed to list sessions")
	}
	return sessions, nil
}
