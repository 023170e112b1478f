package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PasswordHash returns the stored hash for email, or ErrNotFound.
func (s *Store) PasswordHash(ctx context.Context, email string) (string, error) {
	var hash string
	err := s.queryRow(ctx, s.db, `SELECT password_hash FROM users WHERE email = ?`, email).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query user credentials: %w", err)
	}
	return hash, nil
}

// EnsureUser inserts the user unless the email already exists. It reports
// whether a row was inserted.
func (s *Store) EnsureUser(ctx context.Context, email, passwordHash string) (bool, error) {
	return s.ensureUser(ctx, s.db, email, passwordHash)
}

// EnsureUserTx is EnsureUser inside tx.
func (s *Store) EnsureUserTx(ctx context.Context, tx *sql.Tx, email, passwordHash string) (bool, error) {
	return s.ensureUser(ctx, tx, email, passwordHash)
}

func (s *Store) ensureUser(ctx context.Context, q querier, email, passwordHash string) (bool, error) {
	result, err := s.exec(ctx, q, `
		INSERT INTO users (email, password_hash) VALUES (?, ?)
		ON CONFLICT (email) DO NOTHING
	`, email, passwordHash)
	if err != nil {
		return false, fmt.Errorf("insert user: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert user: %w", err)
	}
	return affected > 0, nil
}
