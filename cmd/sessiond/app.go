package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"sessiond/internal/db"
	"sessiond/internal/handlers"
	"sessiond/internal/logger"
	"sessiond/internal/repository/postgres"
	"sessiond/internal/service/auth"
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

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}

	// Initialize repositories
	storage := postgres.NewStorage(pool)

	// Initialize auth service
	cfg := auth.Config{
		SecretKey:      c.SecretKey,
		AccessTokenTTL: c.AccessTTL,
		SessionTTL:     c.RefreshTTL,
	}
	if c.GoogleClientID != "" {
		cfg.GoogleVerifier = auth.NewGoogleVerifier(c.GoogleClientID)
	}
	authService, err := auth.NewService(cfg, storage)
	if err != nil {
		return nil, fmt.Errorf("error while creating auth service. Err: %w", err)
	}

	production := c.Environment == logger.EnvProduction
	mux := handlers.NewRouter(
		authService,
		handlers.CookiePolicy{Production: production, Domain: c.CookieDomain},
		handlers.NewOriginPolicy(production, c.AllowedOrigins),
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
	slog.Info("Starting server")
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed

	return err
}
