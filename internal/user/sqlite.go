package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open user store: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT NOT NULL UNIQUE,
			email TEXT NOT NULL UNIQUE,
			first_name TEXT NOT NULL DEFAULT '',
			last_name TEXT NOT NULL DEFAULT '',
			display_name TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL,
			password_hash TEXT NOT NULL,
			sub TEXT NOT NULL DEFAULT '',
			iss TEXT NOT NULL DEFAULT '',
			eppn TEXT NOT NULL DEFAULT '',
			eptid TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create users table: %w", err)
	}

	db.Exec("CREATE INDEX IF NOT EXISTS idx_users_sub ON users(sub)")

	return &SQLiteStore{db: db}, nil
}

const userColumns = `id, username, email, first_name, last_name, display_name,
	role, password_hash, sub, iss, eppn, eptid, created_at, updated_at`

func (s *SQLiteStore) ByID(ctx context.Context, id int64) (*LocalUser, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = ?", id)
	return scanUser(row)
}

func (s *SQLiteStore) ByUsername(ctx context.Context, username string) (*LocalUser, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE username = ?", username)
	return scanUser(row)
}

func (s *SQLiteStore) ByEmail(ctx context.Context, email string) (*LocalUser, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email = ?", email)
	return scanUser(row)
}

func (s *SQLiteStore) BySub(ctx context.Context, sub string) (*LocalUser, error) {
	if sub == "" {
		return nil, ErrNotFound
	}
	row := s.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE sub = ?", sub)
	return scanUser(row)
}

func (s *SQLiteStore) UsernameExists(ctx context.Context, username string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM users WHERE username = ?", username).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check username: %w", err)
	}
	return count > 0, nil
}

func (s *SQLiteStore) Create(ctx context.Context, u *LocalUser) (*LocalUser, error) {
	now := time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, email, first_name, last_name, display_name,
			role, password_hash, sub, iss, eppn, eptid, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.Username, u.Email, u.FirstName, u.LastName, u.DisplayName,
		u.Role, u.PasswordHash, u.Sub, u.Iss, u.EPPN, u.EPTID, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %v", ErrDuplicate, err)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read new user id: %w", err)
	}

	return s.ByID(ctx, id)
}

func (s *SQLiteStore) UpdateIdentity(ctx context.Context, id int64, ident Identity) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET sub = ?, iss = ?, eppn = ?, eptid = ?, updated_at = ?
		WHERE id = ?`,
		ident.Sub, ident.Iss, ident.EPPN, ident.EPTID, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update identity: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update identity: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*LocalUser, error) {
	var u LocalUser
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.FirstName, &u.LastName,
		&u.DisplayName, &u.Role, &u.PasswordHash, &u.Sub, &u.Iss, &u.EPPN,
		&u.EPTID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return &u, nil
}

// modernc.org/sqlite surfaces constraint violations as plain error strings,
// so string matching is the only portable detection.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
