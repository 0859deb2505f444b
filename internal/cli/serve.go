package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	httpAdapter "github.com/rimraf-adi/socrates/pkg/adapters/http"
	mcpAdapter "github.com/rimraf-adi/socrates/pkg/adapters/mcp"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

// Handler builds the HTTP API of the app.
func (a *App) Handler() http.Handler {
	return httpAdapter.NewServer(a.Engine,
		httpAdapter.WithLogger(a.Logger),
		httpAdapter.WithHistory(a.Sink),
		httpAdapter.WithModels(a.Config.Models, a.Engine.Providers()),
		httpAdapter.WithMetrics(a.Registry),
		httpAdapter.WithCORSOrigins(a.Config.Server.CORSOrigins...),
	).Handler()
}

// Serve runs the HTTP API until ctx is cancelled or a signal arrives. When
// ready is not nil it receives the bound address.
func (a *App) Serve(ctx context.Context, addr string, ready chan<- string) error {
	if addr == "" {
		addr = a.Config.Server.Addr
	}
	sigCtx := NewSignalContext(ctx)
	defer sigCtx.Cancel()

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	srv := &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(sigCtx)
	g.Go(func() error {
		a.Logger.Info("Starting Socrates server", "address", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.Logger.Warn("graceful shutdown did not complete", "timeout", shutdownTimeout, "error", err)
			return srv.Close()
		}
		a.Logger.Info("Socrates server stopped gracefully")
		return nil
	})
	if ready != nil {
		ready <- ln.Addr().String()
	}
	return g.Wait()
}

// ServeMCP serves the MCP tools on stdio, or over SSE when addr is set.
func (a *App) ServeMCP(ctx context.Context, addr string) error {
	s := mcpAdapter.NewServer(a.Engine, a.Sink, mcpAdapter.WithLogger(a.Logger))
	if addr == "" {
		return s.ServeStdio()
	}
	sigCtx := NewSignalContext(ctx)
	defer sigCtx.Cancel()
	return s.ServeSSE(sigCtx, addr, "http://"+addr)
}
