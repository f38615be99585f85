package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"pomodoro/bot/internal/model"
)

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	if user.Timezone == "" {
		user.Timezone = model.DefaultTimezone
	}
	_, err := r.db.ExecContext(
		ctx,
		`INSERT INTO users (id, platform_id, username, first_name, last_name, timezone, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.PlatformID,
		nullString(user.Username),
		user.FirstName,
		nullString(user.LastName),
		user.Timezone,
		formatTime(user.CreatedAt),
		formatTime(user.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *UserRepository) FindByPlatformID(ctx context.Context, platformID int64) (*model.User, error) {
	row := r.db.QueryRowContext(
		ctx,
		`SELECT id, platform_id, username, first_name, last_name, timezone, created_at, updated_at
		 FROM users
		 WHERE platform_id = ?`,
		platformID,
	)
	user, err := scanUser(row)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// BackfillNames fills name fields that are still empty. Stored names are never overwritten.
func (r *UserRepository) BackfillNames(ctx context.Context, user *model.User) error {
	_, err := r.db.ExecContext(
		ctx,
		`UPDATE users
		 SET username = COALESCE(NULLIF(username, ''), ?),
		     first_name = CASE WHEN first_name = '' THEN ? ELSE first_name END,
			 last_name = COALESCE(NULLIF(last_name, ''), ?),
			 updated_at = ?
		 WHERE id = ?`,
		nullString(user.Username),
		user.FirstName,
		nullString(user.LastName),
		formatTime(user.UpdatedAt),
		user.ID,
	)
	if err != nil {
		return fmt.Errorf("backfill user names: %w", err)
	}
	return nil
}

func scanUser(s scanner) (*model.User, error) {
	var user model.User
	var username sql.NullString
	var lastName sql.NullString
	var createdAt string
	var updatedAt string
	err := s.Scan(
		&user.ID,
		&user.PlatformID,
		&username,
		&user.FirstName,
		&lastName,
		&user.Timezone,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	user.Username = username.String
	user.LastName = lastName.String

	parsedCreatedAt, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse user created_at: %w", err)
	}
	parsedUpdatedAt, err := parseTime(updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse user updated_at: %w", err)
	}
	user.CreatedAt = parsedCreatedAt
	user.UpdatedAt = parsedUpdatedAt
	return &user, nil
}

func nullString(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

func nullTime(value *time.Time) interface{} {
	if value == nil {
		return nil
	}
	return formatTime(*value)
}
