package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/quietleaf/journal/internal/apperrors"
	"github.com/quietleaf/journal/internal/models"
)

type UserRepo struct {
	DB DBTX
}

const createUser = `-- name: CreateUser
INSERT INTO users (username, pin_hash, created_at)
VALUES (?, ?, ?)
RETURNING id, created_at, username, pin_hash
`

func (r *UserRepo) CreateUser(ctx context.Context, username string, pinHash string) (models.User, error) {
	createdAt := time.Now().UTC().Format(time.RFC3339Nano)

	row := r.DB.QueryRowContext(ctx, createUser, username, pinHash, createdAt)
	user, err := rowToUser(row)

	if err != nil {
		var serr *sqlite.Error
		if errors.As(err, &serr) && isUniqueViolation(serr.Code()) {
			return user, apperrors.ErrUserAlreadyExists
		}

		return user, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

const getUserByID = `-- name: getUserByID
SELECT id, created_at, username, pin_hash FROM users
WHERE id = ?
`

func (r *UserRepo) GetUserByID(ctx context.Context, id int64) (models.User, error) {
	row := r.DB.QueryRowContext(ctx, getUserByID, id)
	user, err := rowToUser(row)

	switch {
	case err == nil:
		return user, nil
	case errors.Is(err, sql.ErrNoRows):
		return user, apperrors.ErrUserNotFound
	default:
		return user, fmt.Errorf("db error: %w", err)
	}
}

const getUserByUsername = `-- name: getUserByUsername
SELECT id, created_at, username, pin_hash FROM users
WHERE username = ?
`

func (r *UserRepo) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	row := r.DB.QueryRowContext(ctx, getUserByUsername, username)
	user, err := rowToUser(row)

	switch {
	case err == nil:
		return user, nil
	case errors.Is(err, sql.ErrNoRows):
		return user, apperrors.ErrUserNotFound
	default:
		return user, fmt.Errorf("db error: %w", err)
	}
}

// isUniqueViolation reports if the sqlite result code means a unique
// constraint rejected the insert. The driver reports extended codes, so
// other constraint classes (NOT NULL, CHECK) are left to fail loudly.
func isUniqueViolation(code int) bool {
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

func rowToUser(row *sql.Row) (models.User, error) {
	var u models.User
	var createdAt string

	err := row.Scan(&u.ID, &createdAt, &u.Username, &u.PinHash)
	if err != nil {
		return u, err
	}

	u.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return u, fmt.Errorf("bad created_at value %q: %w", createdAt, err)
	}

	return u, nil
}
