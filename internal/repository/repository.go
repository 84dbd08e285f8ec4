package repository

import (
	"context"

	"github.com/quietleaf/journal/internal/models"
)

// User repository interface
type UserRepo interface {
	// Create user with already hashed pin
	// If user with username exists must return apperrors.ErrUserAlreadyExists
	CreateUser(ctx context.Context, username string, pinHash string) (models.User, error)

	// Get user by it's id or username
	// If user not found must return apperrors.ErrUserNotFound
	GetUserByID(ctx context.Context, id int64) (models.User, error)
	GetUserByUsername(ctx context.Context, username string) (models.User, error)
}

// Storage is the set of repositories one backend provides
type Storage interface {
	User() UserRepo
}
