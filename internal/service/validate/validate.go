package validate

import (
	"github.com/quietleaf/journal/internal/apperrors"
)

// Pin checks the credential format: digits only, 4 to 6 of them
func Pin(pin string) error {
	if len(pin) < 4 || len(pin) > 6 {
		return apperrors.ErrInvalidPin
	}

	// It's ok to work with string as bytes here
	for i := 0; i < len(pin); i++ {
		if pin[i] < '0' || pin[i] > '9' {
			return apperrors.ErrInvalidPin
		}
	}

	return nil
}

// Username checks the account name format: 3 to 20 letters and digits,
// with '_' and '-' allowed in between
func Username(username string) error {
	if len(username) < 3 || len(username) > 20 {
		return apperrors.ErrInvalidUsername
	}

	alnum := 0
	for _, r := range username {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			alnum++
		case r == '_', r == '-':
		default:
			return apperrors.ErrInvalidUsername
		}
	}

	// A name that is nothing but separators is not a name
	if alnum == 0 {
		return apperrors.ErrInvalidUsername
	}

	return nil
}
