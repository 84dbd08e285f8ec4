package handlers

import (
	"errors"
	"net/http"

	"github.com/quietleaf/journal/internal/apperrors"
	"github.com/quietleaf/journal/internal/handlers/render"
	"github.com/quietleaf/journal/internal/logger"
)

type userResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

func handleRegister(users userService, sessions sessionManager, l logger.Logger) http.Handler {
	type RegisterRequest struct {
		Username string `json:"username" validate:"required"`
		Pin      string `json:"pin" validate:"required"`
	}
	type RegisterSuccessResponse struct {
		Success bool         `json:"success"`
		User    userResponse `json:"user"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[RegisterRequest](w, r)
		if err != nil {
			return
		}

		user, err := users.CreateUser(r.Context(), data.Username, data.Pin)
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrUserAlreadyExists):
				render.ServiceError(w, "Username already exists", http.StatusConflict)
			case errors.Is(err, apperrors.ErrInvalidPin), errors.Is(err, apperrors.ErrInvalidUsername):
				render.ServiceError(w, err.Error(), http.StatusBadRequest)
			default:
				l.Error("Failed to register user", "error", err)
				render.ServiceError(w, "Registration failed", http.StatusInternalServerError)
			}
			return
		}

		// Auto-login after registration, best effort
		if err := sessions.Issue(w, user); err != nil {
			l.Warn("Failed to set session after registration", "error", err, "user_id", user.ID)
		}

		render.JSONStatus(w, RegisterSuccessResponse{
			Success: true,
			User:    userResponse{ID: user.ID, Username: user.Username},
		}, http.StatusCreated)
	})
}

func handleLogin(users userService, sessions sessionManager, l logger.Logger) http.Handler {
	type LoginRequest struct {
		Username string `json:"username" validate:"required"`
		Pin      string `json:"pin" validate:"required"`
	}
	type LoginSuccessResponse struct {
		Success bool         `json:"success"`
		User    userResponse `json:"user"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[LoginRequest](w, r)
		if err != nil {
			return
		}

		user, err := users.VerifyUser(r.Context(), data.Username, data.Pin)
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrUserNotFound):
				render.ServiceError(w, "Invalid username or PIN", http.StatusUnauthorized)
			default:
				l.Error("Failed to login user", "error", err)
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		if err := sessions.Issue(w, user); err != nil {
			l.Error("Failed to set session", "error", err, "user_id", user.ID)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		render.JSON(w, LoginSuccessResponse{
			Success: true,
			User:    userResponse{ID: user.ID, Username: user.Username},
		})
	})
}

func handleLogout(sessions sessionManager) http.Handler {
	type LogoutSuccessResponse struct {
		Success bool `json:"success"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessions.Clear(w)
		render.JSON(w, LogoutSuccessResponse{Success: true})
	})
}

func handleStatus(sessions sessionManager) http.Handler {
	type StatusResponse struct {
		Authenticated bool          `json:"authenticated"`
		User          *userResponse `json:"user,omitempty"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := sessions.UserFromRequest(r.Context(), r)
		if err != nil {
			render.JSON(w, StatusResponse{Authenticated: false})
			return
		}

		render.JSON(w, StatusResponse{
			Authenticated: true,
			User:          &userResponse{ID: user.ID, Username: user.Username},
		})
	})
}
