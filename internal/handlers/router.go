package handlers

import (
	"context"
	"net/http"

	"github.com/quietleaf/journal/internal/handlers/middleware"
	"github.com/quietleaf/journal/internal/logger"
	"github.com/quietleaf/journal/internal/models"
	"github.com/quietleaf/journal/internal/service/ratelimit"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

type RouterConfig struct {
	// Browser origins allowed to call the API
	CORSOrigins []string

	// Limiter for the AI routes, nil disables limiting
	AILimiter ratelimit.Limiter
}

func NewRouter(
	cfg RouterConfig,
	users userService,
	sessions sessionManager,
	gateway llmGateway,
	logger logger.Logger,
) http.Handler {
	authMiddleware := middleware.Auth(sessions)
	withAuth := func(h http.Handler) http.Handler {
		return authMiddleware(h)
	}
	withRate := middleware.RateLimit(cfg.AILimiter)

	apiauth := http.NewServeMux()
	apiauth.Handle("POST /register", handleRegister(users, sessions, logger))
	apiauth.Handle("POST /login", handleLogin(users, sessions, logger))
	apiauth.Handle("POST /logout", withAuth(handleLogout(sessions)))
	apiauth.Handle("GET /status", handleStatus(sessions))

	apiai := http.NewServeMux()
	apiai.Handle("POST /prompt", withAuth(withRate(handlePrompt(gateway, logger))))
	apiai.Handle("POST /analyze", withAuth(withRate(handleAnalyze(gateway, logger))))
	apiai.Handle("POST /patterns", withAuth(withRate(handlePatterns(gateway, logger))))

	root := http.NewServeMux()
	root.Handle("/api/auth/", http.StripPrefix("/api/auth", apiauth))
	root.Handle("/api/ai/", http.StripPrefix("/api/ai", apiai))
	root.Handle("GET /api/health", handleHealth(gateway))

	handler := chain(root,
		middleware.Logger(logger),
		middleware.CORS(cfg.CORSOrigins),
	)

	return handler
}

type userService interface {
	// Create user with username and pin
	// Has to return apperrors.ErrUserAlreadyExists if username is taken and
	// apperrors.ErrInvalidPin / apperrors.ErrInvalidUsername on bad input
	CreateUser(ctx context.Context, username string, pin string) (models.User, error)

	// Verify credentials
	// Has to return apperrors.ErrUserNotFound on any mismatch
	VerifyUser(ctx context.Context, username string, pin string) (models.User, error)
}

type sessionManager interface {
	// Set the session cookie for the user
	Issue(w http.ResponseWriter, user models.User) error

	// Expire the session cookie
	Clear(w http.ResponseWriter)

	// Resolve the request's session to a user
	// Has to return apperrors.ErrAuthRequired when there is no valid identity
	UserFromRequest(ctx context.Context, r *http.Request) (models.User, error)
}

type llmGateway interface {
	Generate(ctx context.Context, prompt string, system string, maxTokens int, temperature float64) (string, error)
	CheckHealth(ctx context.Context) bool
}
