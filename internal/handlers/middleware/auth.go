package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/quietleaf/journal/internal/apperrors"
	"github.com/quietleaf/journal/internal/handlers/render"
	"github.com/quietleaf/journal/internal/handlers/userctx"
	"github.com/quietleaf/journal/internal/models"
)

type sessionResolver interface {
	UserFromRequest(ctx context.Context, r *http.Request) (models.User, error)
}

// Auth requires a resolvable session identity and stashes the user in context
// Only a missing identity is 401, a failing credential store is not the
// client's fault
func Auth(sessions sessionResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := sessions.UserFromRequest(r.Context(), r)
			switch {
			case err == nil:
			case errors.Is(err, apperrors.ErrAuthRequired):
				render.ServiceError(w, "Authentication required", http.StatusUnauthorized)
				return
			default:
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
				return
			}

			ctx := userctx.New(r.Context(), user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
