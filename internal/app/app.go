package app

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/vovakirdan/peerlink/internal/auth"
	"github.com/vovakirdan/peerlink/internal/config"
	"github.com/vovakirdan/peerlink/internal/log"
	"github.com/vovakirdan/peerlink/internal/relay"
	"github.com/vovakirdan/peerlink/internal/store"
	"github.com/vovakirdan/peerlink/internal/store/memory"
	"github.com/vovakirdan/peerlink/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/peerlink/internal/transport/http"
)

// TicketTTL is the lifetime of tickets minted by the relay CLI.
const TicketTTL = 24 * time.Hour

// App wires together the relay hub and its HTTP transport.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *relay.Hub
	store           store.EventLog
	log             *zerolog.Logger
}

// New constructs the relay with provided configuration.
func New(cfg *config.RelayConfig, logger *zerolog.Logger) (*App, error) {
	events, err := openEventLog(cfg, logger)
	if err != nil {
		return nil, err
	}

	jwtConfig := JWTConfig(cfg)
	var verifier *auth.Verifier
	if jwtConfig != nil {
		verifier = auth.NewVerifier(jwtConfig, cfg.JWTRequired)
		logger.Info().Bool("required", cfg.JWTRequired).Msg("ticket verification enabled")
	}

	hub := relay.NewHub(events, verifier, log.Component(logger, "hub"))
	server := transporthttp.NewServer(hub, *cfg, jwtConfig, log.Component(logger, "http"))

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		store:           events,
		log:             logger,
	}, nil
}

// JWTConfig returns the ticket settings, or nil when no secret is configured.
func JWTConfig(cfg *config.RelayConfig) *auth.JWTConfig {
	if cfg.JWTSecret == "" {
		return nil
	}
	return &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      TicketTTL,
	}
}

func openEventLog(cfg *config.RelayConfig, logger *zerolog.Logger) (store.EventLog, error) {
	switch cfg.EventStore {
	case "sqlite":
		st, err := sqlite.New(cfg.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("init store: %w", err)
		}
		logger.Info().Str("db_path", cfg.DatabasePath).Msg("event store initialized")
		return st, nil
	default:
		logger.Info().Msg("using in-memory event store")
		return memory.New(), nil
	}
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() stdhttp.Handler {
	return a.server.Handler
}

// Run starts the hub and the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	hubCtx, stopHub := context.WithCancel(context.Background())
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		a.hub.Run(hubCtx)
	}()
	defer func() {
		stopHub()
		<-hubDone
		a.cleanup()
	}()

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("relay listening")
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-serverErr
	}
}

// cleanup closes the event store once the hub has stopped using it.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
