package model

import "time"

const (
	DefaultWorkMinutes  = 25
	DefaultBreakMinutes = 5
	// MaxMinutes caps a single work or break phase at one day.
	MaxMinutes = 24 * 60
)

// PomodoroSession is one run of a timer. Completed counts finished work
// phases; EndedAt stays nil until the daily reset sweeps the session.
type PomodoroSession struct {
	ID           string     `json:"id"`
	UserID       string     `json:"userId"`
	WorkMinutes  int        `json:"workMinutes"`
	BreakMinutes int        `json:"breakMinutes"`
	StartedAt    time.Time  `json:"startedAt"`
	EndedAt      *time.Time `json:"endedAt,omitempty"`
	Completed    int        `json:"completed"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

func (s PomodoroSession) IsOpen() bool {
	return s.EndedAt == nil
}
