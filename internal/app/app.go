package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/duelsync-server/internal/config"
	"github.com/vovakirdan/duelsync-server/internal/core"
	"github.com/vovakirdan/duelsync-server/internal/events"
	"github.com/vovakirdan/duelsync-server/internal/events/natsbus"
	"github.com/vovakirdan/duelsync-server/internal/service/matches"
	"github.com/vovakirdan/duelsync-server/internal/store"
	"github.com/vovakirdan/duelsync-server/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/duelsync-server/internal/transport/http"
)

// App wires together core and transport layers.
type App struct {
	apiServer       *stdhttp.Server
	wsServer        *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	store           store.Store
	publisher       events.Publisher
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	a := &App{
		shutdownTimeout: cfg.ShutdownTimeout,
		publisher:       events.Nop{},
		log:             logger,
	}

	if cfg.DatabasePath != "" {
		st, err := sqlite.New(cfg.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("init store: %w", err)
		}
		a.store = st
		logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")
	}

	if cfg.NATSURL != "" {
		pub, err := natsbus.Connect(cfg.NATSURL, logger)
		if err != nil {
			a.cleanup()
			return nil, fmt.Errorf("init publisher: %w", err)
		}
		a.publisher = pub
		logger.Info().Str("nats_url", cfg.NATSURL).Msg("event publisher connected")
	}

	var history transporthttp.MatchHistory
	var matchStore store.MatchStore
	if a.store != nil {
		matchStore = a.store
	}
	svc := matches.New(matchStore, a.publisher, logger)
	if a.store != nil {
		history = svc
	}

	a.hub = core.NewHub(
		core.WithLogger(logger),
		core.WithGameOverHook(svc),
		core.WithSweepInterval(cfg.SweepInterval),
	)
	a.apiServer = transporthttp.NewAPIServer(a.hub, history, cfg, logger)
	a.wsServer = transporthttp.NewWSServer(a.hub, cfg, logger)

	return a, nil
}

// Hub exposes the session hub.
func (a *App) Hub() *core.Hub {
	return a.hub
}

// Run starts both HTTP servers and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	// Hijacked websocket connections are not tracked by Shutdown; tie them to ctx instead.
	a.wsServer.BaseContext = func(net.Listener) context.Context { return ctx }

	serverErr := make(chan error, 2)

	go a.hub.Run(ctx)

	for _, srv := range []*stdhttp.Server{a.apiServer, a.wsServer} {
		go func(srv *stdhttp.Server) {
			a.log.Info().Str("addr", srv.Addr).Msg("listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
				serverErr <- fmt.Errorf("serve %s: %w", srv.Addr, err)
				return
			}
			serverErr <- nil
		}(srv)
	}

	var runErr error
	select {
	case runErr = <-serverErr:
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()

	a.log.Info().Msg("shutting down http servers")
	for _, srv := range []*stdhttp.Server{a.apiServer, a.wsServer} {
		if err := srv.Shutdown(shutdownCtx); err != nil && runErr == nil {
			runErr = err
		}
	}

	a.cleanup()
	return runErr
}

// cleanup closes the publisher, database and other resources.
func (a *App) cleanup() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close publisher")
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
