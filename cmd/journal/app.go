package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/quietleaf/journal/internal/db"
	"github.com/quietleaf/journal/internal/handlers"
	"github.com/quietleaf/journal/internal/logger"
	"github.com/quietleaf/journal/internal/repository"
	"github.com/quietleaf/journal/internal/repository/postgres"
	"github.com/quietleaf/journal/internal/repository/sqlite"
	"github.com/quietleaf/journal/internal/service/llm"
	"github.com/quietleaf/journal/internal/service/ratelimit"
	"github.com/quietleaf/journal/internal/service/session"
	"github.com/quietleaf/journal/internal/service/user"
)

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	// Initialize logger
	log, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	if c.SecretKey == "" {
		return nil, errors.New("secret key must be set")
	}

	// Pick the storage backend once, connect and run migrations
	var storage repository.Storage
	switch backend := c.Backend(); backend {
	case BackendPostgres:
		pool, err := db.ConnectAndMigratePostgres(ctx, c.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("error while connecting to postgres. Err: %w", err)
		}
		storage = postgres.NewStorage(pool)
		log.Info("Credential store initialized", "backend", backend)

	case BackendSQLite:
		sqldb, err := db.OpenAndMigrateSQLite(c.AuthDBPath)
		if err != nil {
			return nil, fmt.Errorf("error while opening sqlite db. Err: %w", err)
		}
		storage = sqlite.NewStorage(sqldb)
		log.Info("Credential store initialized", "backend", backend, "path", c.AuthDBPath)
	}

	// Initialize services
	userService := user.NewService(user.DefaultHasher, storage)

	sessions, err := session.New(session.Config{
		SecretKey:    c.SecretKey,
		CookieSecure: c.Environment == logger.EnvProduction,
	}, userService)
	if err != nil {
		return nil, fmt.Errorf("error while creating session manager. Err: %w", err)
	}

	gateway := llm.NewClient(llm.Config{
		BaseURL:    c.OllamaBaseURL,
		Model:      c.OllamaModel,
		Timeout:    time.Duration(c.OllamaTimeout) * time.Second,
		MaxRetries: c.OllamaMaxRetries,
		RetryDelay: time.Duration(c.OllamaRetryDelay * float64(time.Second)),
	}, log)

	var limiter ratelimit.Limiter
	if c.RateLimitEnabled {
		limiter = ratelimit.NewWindow(c.MaxRequestsPerHour, time.Hour)
	}

	mux := handlers.NewRouter(
		handlers.RouterConfig{
			CORSOrigins: c.CORSOrigins,
			AILimiter:   limiter,
		},
		userService,
		sessions,
		gateway,
		log,
	)

	return &ServerApp{
		ListenAddr: c.ListenAddr,
		Handler:    mux,
	}, nil
}

// Run starts http server and closes gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    s.ListenAddr,
		Handler: s.Handler,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); err == context.DeadlineExceeded {
			slog.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		slog.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	slog.Info("Starting server", "addr", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed

	return err
}
