package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/vulntor/batchq/pkg/config"
	"github.com/vulntor/batchq/pkg/server/api"
	"github.com/vulntor/batchq/pkg/server/httpx"
)

// App orchestrates the server runtime components:
// - HTTP server (control API)
// - the queue it controls
// - Lifecycle management
type App struct {
	HTTP   *http.Server
	Ready  *atomic.Bool
	Config config.ServerConfig
	Deps   *Deps

	mu   sync.Mutex
	addr net.Addr
}

// New creates and configures a new server application.
func New(cfg config.ServerConfig, deps *Deps) (*App, error) {
	if deps == nil || deps.Queue == nil {
		return nil, errors.New("server requires a queue")
	}

	apiCfg := api.DefaultConfig()
	if deps.API != nil {
		apiCfg = *deps.API
	}
	if err := apiCfg.Validate(); err != nil {
		return nil, err
	}

	deps.Logger.Info().Msg("Initializing server application")

	ready := &atomic.Bool{}
	apiDeps := &api.Deps{
		Queue:  deps.Queue,
		Ready:  ready,
		Config: apiCfg,
	}

	httpServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Addr, strconv.Itoa(cfg.Port)),
		Handler:      httpx.Chain(httpx.NewRouter(apiDeps)),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return &App{
		HTTP:   httpServer,
		Ready:  ready,
		Config: cfg,
		Deps:   deps,
	}, nil
}

// Addr returns the address the server is listening on, or nil before Run
// has bound it.
func (a *App) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.addr
}

// Run starts the server and blocks until ctx is cancelled or the server
// fails, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", a.HTTP.Addr, err)
	}
	a.mu.Lock()
	a.addr = ln.Addr()
	a.mu.Unlock()

	a.Deps.Logger.Info().
		Str("addr", ln.Addr().String()).
		Msg("Starting batchq server")

	serverErr := make(chan error, 1)
	go func() {
		if err := a.HTTP.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- fmt.Errorf("HTTP server failed: %w", err)
		}
	}()

	a.Ready.Store(true)
	a.Deps.Logger.Info().Msg("Server is ready and accepting connections")

	select {
	case <-ctx.Done():
		a.Deps.Logger.Info().Msg("Shutdown signal received")
	case err := <-serverErr:
		a.Deps.Logger.Error().Err(err).Msg("Server error")
		_ = a.shutdown()
		return err
	}

	return a.shutdown()
}

// shutdown stops accepting requests, then closes the queue. In-flight
// attempts get ShutdownTimeout to finish before they are cancelled.
func (a *App) shutdown() error {
	a.Deps.Logger.Info().Msg("Initiating graceful shutdown")

	timeout := a.Config.ShutdownTimeout
	if timeout <= 0 {
		timeout = config.DefaultServerConfig().ShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	a.Ready.Store(false)

	a.Deps.Logger.Info().Msg("Shutting down HTTP server...")
	if err := a.HTTP.Shutdown(shutdownCtx); err != nil {
		a.Deps.Logger.Error().Err(err).Msg("HTTP server shutdown failed")
		return err
	}
	a.Deps.Logger.Info().Msg("HTTP server stopped")

	a.Deps.Logger.Info().Msg("Closing queue...")
	if err := a.Deps.Queue.Close(shutdownCtx); err != nil {
		a.Deps.Logger.Error().Err(err).Msg("Queue close timed out, in-flight items were cancelled")
		return err
	}
	a.Deps.Logger.Info().Msg("Server shutdown complete")
	return nil
}
