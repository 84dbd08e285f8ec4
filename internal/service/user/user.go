package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/quietleaf/journal/internal/apperrors"
	"github.com/quietleaf/journal/internal/models"
	"github.com/quietleaf/journal/internal/repository"
	"github.com/quietleaf/journal/internal/service/validate"
)

// Service owns credentials: it validates, hashes and never lets a raw pin
// reach the storage layer
type Service struct {
	hasher  PinHasher
	storage repository.Storage
}

func NewService(hasher PinHasher, storage repository.Storage) *Service {
	if hasher == nil {
		hasher = DefaultHasher
	}

	return &Service{
		hasher:  hasher,
		storage: storage,
	}
}

// CreateUser registers new credentials
// Returns apperrors.ErrInvalidPin or apperrors.ErrInvalidUsername on bad
// input and apperrors.ErrUserAlreadyExists if the username is taken
func (s *Service) CreateUser(ctx context.Context, username string, pin string) (models.User, error) {
	var user models.User

	if err := validate.Pin(pin); err != nil {
		return user, err
	}
	if err := validate.Username(username); err != nil {
		return user, err
	}

	hash, err := s.hasher.Hash(pin)
	if err != nil {
		return user, fmt.Errorf("can't use this as pin, Err: %w", err)
	}

	user, err = s.storage.User().CreateUser(ctx, username, hash)
	if err != nil {
		if errors.Is(err, apperrors.ErrUserAlreadyExists) {
			return user, err
		}
		return user, fmt.Errorf("can't create user. Err: %w", err)
	}

	return user, nil
}

// VerifyUser checks the pair of credentials
// Unknown username and wrong pin are both apperrors.ErrUserNotFound so the
// caller can't probe which usernames exist
func (s *Service) VerifyUser(ctx context.Context, username string, pin string) (models.User, error) {
	user, err := s.storage.User().GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, apperrors.ErrUserNotFound) {
			return models.User{}, apperrors.ErrUserNotFound
		}
		return models.User{}, fmt.Errorf("can't get user. Err: %w", err)
	}

	if err := s.hasher.Compare(user.PinHash, pin); err != nil {
		return models.User{}, apperrors.ErrUserNotFound
	}

	return user, nil
}

// GetUserByID loads the user, apperrors.ErrUserNotFound if the id was never issued
func (s *Service) GetUserByID(ctx context.Context, id int64) (models.User, error) {
	user, err := s.storage.User().GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperrors.ErrUserNotFound) {
			return models.User{}, apperrors.ErrUserNotFound
		}
		return models.User{}, fmt.Errorf("can't get user. Err: %w", err)
	}

	return user, nil
}
