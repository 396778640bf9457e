// Package user owns the local account store that login provisions into.
package user

import (
	"context"
	"errors"
	"time"

	"github.com/meshresearch/cilogon-rp/internal/config"
)

var (
	ErrNotFound = errors.New("user not found")

	// ErrDuplicate is returned by Create when the store's uniqueness
	// constraints (username, email) reject the new account.
	ErrDuplicate = errors.New("user already exists")
)

// LocalUser is a persistent local account. Identity metadata (sub, iss,
// eppn, eptid) is re-synchronized on every successful login and carries no
// uniqueness constraint of its own.
type LocalUser struct {
	ID           int64
	Username     string
	Email        string
	FirstName    string
	LastName     string
	DisplayName  string
	Role         string
	PasswordHash string

	Sub   string
	Iss   string
	EPPN  string
	EPTID string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Identity is the per-login metadata synced onto an account.
type Identity struct {
	Sub   string
	Iss   string
	EPPN  string
	EPTID string
}

type Store interface {
	ByID(ctx context.Context, id int64) (*LocalUser, error)
	ByUsername(ctx context.Context, username string) (*LocalUser, error)
	ByEmail(ctx context.Context, email string) (*LocalUser, error)
	BySub(ctx context.Context, sub string) (*LocalUser, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	Create(ctx context.Context, u *LocalUser) (*LocalUser, error)
	UpdateIdentity(ctx context.Context, id int64, ident Identity) error
	Close() error
}

func NewStore(cfg config.StoreConfig) (Store, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.SQLite == nil {
			return nil, errors.New("sqlite config is required for sqlite store type")
		}
		return NewSQLiteStore(cfg.SQLite.Path)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, errors.New("unsupported store type: " + cfg.Type)
	}
}
