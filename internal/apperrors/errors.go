package apperrors

import (
	"errors"
)

var (
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrUserNotFound      = errors.New("user not found")

	ErrInvalidPin      = errors.New("pin must be 4-6 digits")
	ErrInvalidUsername = errors.New("username must be 3-20 alphanumeric characters (with optional _ or -)")

	ErrAuthRequired = errors.New("authentication required")
)
