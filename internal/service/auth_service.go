package service

import (
	"context"
	"crypto/subtle"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	apperrors "pomodoro/bot/internal/errors"
)

// AuthService guards the admin API. There is a single operator account whose
// bcrypt hash comes from configuration.
type AuthService struct {
	username     string
	passwordHash []byte
	jwtSecret    []byte
	tokenTTL     time.Duration
}

func NewAuthService(username, passwordHash, jwtSecret string, tokenTTL time.Duration) *AuthService {
	return &AuthService{
		username:     username,
		passwordHash: []byte(passwordHash),
		jwtSecret:    []byte(jwtSecret),
		tokenTTL:     tokenTTL,
	}
}

type AuthResult struct {
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// HashPassword produces the value expected in ADMIN_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (s *AuthService) Login(_ context.Context, username, password string) (*AuthResult, *apperrors.APIError) {
	if len(s.passwordHash) == 0 {
		return nil, apperrors.AdminDisabled()
	}

	normalized := strings.TrimSpace(username)
	if normalized == "" || password == "" {
		return nil, apperrors.BadRequest(apperrors.CodeInvalidCredentials, "username and password are required")
	}

	// both checks always run
	passwordErr := bcrypt.CompareHashAndPassword(s.passwordHash, []byte(password))
	usernameOK := subtle.ConstantTimeCompare([]byte(normalized), []byte(s.username)) == 1
	if passwordErr != nil || !usernameOK {
		return nil, apperrors.Unauthorized("invalid username or password")
	}

	token, expiresAt, apiErr := s.issueToken(normalized)
	if apiErr != nil {
		return nil, apiErr
	}
	return &AuthResult{
		Token:     token,
		Username:  normalized,
		ExpiresAt: expiresAt,
	}, nil
}

func (s *AuthService) ParseToken(tokenString string) (string, *apperrors.APIError) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return "", apperrors.Unauthorized("invalid token")
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok {
		return "", apperrors.Unauthorized("invalid token")
	}

	if claims.Subject != s.username {
		return "", apperrors.Unauthorized("invalid token subject")
	}

	return claims.Subject, nil
}

func (s *AuthService) issueToken(subject string) (string, time.Time, *apperrors.APIError) {
	now := time.Now().UTC()
	expiresAt := now.Add(s.tokenTTL)
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", time.Time{}, apperrors.Internal("failed to sign token")
	}
	return signed, expiresAt, nil
}
