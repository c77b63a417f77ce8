package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
)

// MinPasswordLen is enforced by CreateUser.
const MinPasswordLen = 8

// CreateUser stores a bcrypt hash of password.
func (s *Store) CreateUser(ctx context.Context, username, password string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return fmt.Errorf("username is required")
	}
	if len(password) < MinPasswordLen {
		return ErrWeakPassword
	}

	var n int
	if err := s.db.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM users WHERE username = ?`), username).Scan(&n); err != nil {
		return fmt.Errorf("lookup user %s: %w", username, err)
	}
	if n > 0 {
		return fmt.Errorf("%w: %s", ErrUserExists, username)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		s.rebind(`INSERT INTO users (username, password_hash, created_at) VALUES (?, ?, ?)`),
		username, string(hash), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert user %s: %w", username, err)
	}
	return nil
}

// Authenticate returns ErrInvalidCredentials for an unknown user or a wrong
// password, without saying which.
func (s *Store) Authenticate(ctx context.Context, username, password string) error {
	var hash string
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT password_hash FROM users WHERE username = ?`),
		strings.TrimSpace(username)).Scan(&hash)
	if isNotFound(err) {
		return ErrInvalidCredentials
	}
	if err != nil {
		return fmt.Errorf("lookup user: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// CountUsers reports how many accounts exist.
func (s *Store) CountUsers(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}
