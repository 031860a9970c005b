package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/auth"
	"github.com/vovakirdan/wirechat-relay/internal/config"
	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/presence"
	"github.com/vovakirdan/wirechat-relay/internal/presence/redismirror"
	"github.com/vovakirdan/wirechat-relay/internal/service/friends"
	"github.com/vovakirdan/wirechat-relay/internal/service/groups"
	"github.com/vovakirdan/wirechat-relay/internal/service/inbox"
	"github.com/vovakirdan/wirechat-relay/internal/service/messages"
	"github.com/vovakirdan/wirechat-relay/internal/store"
	"github.com/vovakirdan/wirechat-relay/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/wirechat-relay/internal/transport/http"
)

// App wires together storage, services and the transport layer.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	store           store.Store
	mirror          *redismirror.Mirror
	log             *zerolog.Logger
}

// New constructs the application with provided configuration. The store is
// retried with a fixed delay and its final failure is returned.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	st, err := connectStore(ctx, cfg.StoreConnectRetries, cfg.StoreRetryDelay, func() (*sqlite.SQLiteStore, error) {
		return sqlite.New(cfg.DatabasePath)
	}, logger)
	if err != nil {
		return nil, err
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	var (
		observer presence.Observer
		mirror   *redismirror.Mirror
	)
	if cfg.RedisURL != "" {
		mirror, err = redismirror.New(ctx, cfg.RedisURL, cfg.PresenceTTL)
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("init presence mirror: %w", err)
		}
		observer = mirror
		logger.Info().Dur("ttl", cfg.PresenceTTL).Msg("presence mirrored to redis")
	}

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.TokenTTL,
	}
	authService := auth.NewService(st, jwtConfig, cfg.PasswordCost)

	registry := presence.NewRegistry(observer, logger)
	locks := core.NewKeyLock()
	box := inbox.NewService(st, registry, logger)
	msgs := messages.New(st, registry, locks, logger)

	svc := transporthttp.Services{
		Auth:     authService,
		Presence: registry,
		Inbox:    box,
		Friends:  friends.New(st, registry, box, locks, logger),
		Groups:   groups.New(st, registry, box, msgs, authService, locks, logger),
		Messages: msgs,
	}

	return &App{
		server:          transporthttp.NewServer(svc, st, cfg, logger),
		shutdownTimeout: cfg.ShutdownTimeout,
		store:           st,
		mirror:          mirror,
		log:             logger,
	}, nil
}

// connectStore calls open up to attempts times, sleeping delay between failures.
func connectStore(ctx context.Context, attempts int, delay time.Duration, open func() (*sqlite.SQLiteStore, error), logger *zerolog.Logger) (*sqlite.SQLiteStore, error) {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for i := 1; i <= attempts; i++ {
		st, err := open()
		if err == nil {
			return st, nil
		}
		lastErr = err
		logger.Warn().Err(err).Int("attempt", i).Int("of", attempts).Msg("store connection failed")
		if i == attempts {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("init store: %w", ctx.Err())
		}
	}
	return nil, fmt.Errorf("init store after %d attempts: %w", attempts, lastErr)
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() stdhttp.Handler {
	return a.server.Handler
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("relay listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.mirror != nil {
		if err := a.mirror.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close presence mirror")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
