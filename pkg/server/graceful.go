package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dd0wney/cluso-sqlgate/pkg/logging"
)

// ConfigReloadFunc reloads configuration on SIGHUP.
type ConfigReloadFunc func() error

// ShutdownHook runs during graceful shutdown, before the listener
// closes. Used to stop background services (pollers, subscribers) so
// in-flight requests drain against a quiet process.
type ShutdownHook func(ctx context.Context) error

// GracefulServer wraps an HTTP server with signal handling, ordered
// shutdown hooks, and SIGHUP-driven config reload.
type GracefulServer struct {
	server       *http.Server
	shutdownCh   chan struct{}
	shutdownOnce sync.Once

	mu       sync.RWMutex
	reloadFn ConfigReloadFunc
	hooks    []ShutdownHook

	logger logging.Logger
}

// NewGracefulServer creates a server with production timeouts.
func NewGracefulServer(addr string, handler http.Handler) *GracefulServer {
	return &GracefulServer{
		server: &http.Server{
			Addr:           addr,
			Handler:        handler,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   30 * time.Second,
			IdleTimeout:    120 * time.Second,
			MaxHeaderBytes: 1 << 20,
		},
		shutdownCh: make(chan struct{}),
		logger:     logging.With(logging.Component("server")),
	}
}

// Start serves until shutdown. Blocks.
func (gs *GracefulServer) Start() error {
	go gs.handleSignals()

	gs.logger.Info("HTTP server listening", logging.String("addr", gs.server.Addr))
	if err := gs.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown runs the hooks and drains the listener within timeout.
func (gs *GracefulServer) Shutdown(timeout time.Duration) error {
	var err error
	gs.shutdownOnce.Do(func() {
		close(gs.shutdownCh)

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		gs.logger.Info("Graceful shutdown started", logging.Duration("timeout", timeout))

		gs.mu.RLock()
		hooks := gs.hooks
		gs.mu.RUnlock()
		for _, hook := range hooks {
			if herr := hook(ctx); herr != nil {
				gs.logger.Warn("Shutdown hook failed", logging.Error(herr))
			}
		}

		if serr := gs.server.Shutdown(ctx); serr != nil {
			err = serr
			gs.logger.Error("Shutdown failed", logging.Error(serr))
		} else {
			gs.logger.Info("Shutdown complete")
		}
	})
	return err
}

func (gs *GracefulServer) handleSignals() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for sig := range sigCh {
		switch sig {
		case syscall.SIGINT, syscall.SIGTERM:
			gs.logger.Info("Termination signal received", logging.String("signal", sig.String()))
			if err := gs.Shutdown(30 * time.Second); err != nil {
				os.Exit(1)
			}
			os.Exit(0)

		case syscall.SIGHUP:
			gs.logger.Info("SIGHUP received, reloading configuration")
			if err := gs.ReloadConfig(); err != nil {
				gs.logger.Error("Configuration reload failed", logging.Error(err))
			}
		}
	}
}

// IsShuttingDown reports whether shutdown has begun.
func (gs *GracefulServer) IsShuttingDown() bool {
	select {
	case <-gs.shutdownCh:
		return true
	default:
		return false
	}
}

// ShutdownChannel closes when shutdown begins.
func (gs *GracefulServer) ShutdownChannel() <-chan struct{} {
	return gs.shutdownCh
}

// OnShutdown registers a hook. Hooks run in registration order.
func (gs *GracefulServer) OnShutdown(hook ShutdownHook) {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	gs.hooks = append(gs.hooks, hook)
}

// SetConfigReloadFunc installs the SIGHUP handler's reload function.
func (gs *GracefulServer) SetConfigReloadFunc(fn ConfigReloadFunc) {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	gs.reloadFn = fn
}

// ReloadConfig invokes the configured reload function, if any.
func (gs *GracefulServer) ReloadConfig() error {
	gs.mu.RLock()
	fn := gs.reloadFn
	gs.mu.RUnlock()

	if fn == nil {
		gs.logger.Warn("Reload requested but no reload function configured")
		return nil
	}
	if err := fn(); err != nil {
		return err
	}
	gs.logger.Info("Configuration reloaded")
	return nil
}
