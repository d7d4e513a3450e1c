// Package app wires the gateway components together and manages their lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/runebook/runebook-gateway/internal/app/storage"
	"github.com/runebook/runebook-gateway/internal/config"
	"github.com/runebook/runebook-gateway/internal/service"
	"github.com/runebook/runebook-gateway/internal/store"
	"github.com/runebook/runebook-gateway/internal/sync/coordinator"
)

// GatewayApp encapsulates all components needed to run the gateway API server
type GatewayApp struct {
	config     *config.Config
	gateway    *service.Gateway
	watcher    coordinator.Coordinator
	store      store.Store
	storage    storage.Factory
	httpServer *http.Server

	ctx        context.Context
	cancelFunc context.CancelFunc
	lifecycle  conc.WaitGroup
	closeOnce  sync.Once
}

// Start runs the patch watcher in the background and serves HTTP until the
// server is shut down
func (app *GatewayApp) Start() error {
	listener, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}
	return app.Serve(listener)
}

// Serve is Start on an existing listener
func (app *GatewayApp) Serve(listener net.Listener) error {
	if app.watcher != nil {
		app.lifecycle.Go(func() {
			if err := app.watcher.Start(app.ctx); err != nil {
				slog.Error("Patch watcher failed", "error", err)
			}
		})
	}

	slog.Info("Server listening", "address", listener.Addr().String())
	if err := app.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	return nil
}

// Stop stops the patch watcher, drains the HTTP server within timeout and
// releases the snapshot store
func (app *GatewayApp) Stop(timeout time.Duration) error {
	slog.Info("Shutting down server...")

	if app.watcher != nil {
		if err := app.watcher.Stop(); err != nil {
			slog.Error("Failed to stop patch watcher", "error", err)
		}
	}
	app.cancelFunc()
	app.lifecycle.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := app.httpServer.Shutdown(shutdownCtx)
	app.close()
	if err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	slog.Info("Server shutdown complete")
	return nil
}

func (app *GatewayApp) close() {
	app.closeOnce.Do(func() {
		if err := app.store.Close(); err != nil {
			slog.Warn("Failed to close snapshot store", "error", err)
		}
		app.storage.Cleanup()
	})
}

// GetConfig returns the application configuration
func (app *GatewayApp) GetConfig() *config.Config {
	return app.config
}

// GetHTTPServer returns the HTTP server
func (app *GatewayApp) GetHTTPServer() *http.Server {
	return app.httpServer
}

// Gateway returns the aggregation facade
func (app *GatewayApp) Gateway() *service.Gateway {
	return app.gateway
}
