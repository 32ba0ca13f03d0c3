package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/tartampluch/go-ketchup/internal/config"
)

// Start binds addr and then behaves like Serve.
// A port that is already taken fails here, before anything is served.
func Start(ctx context.Context, addr string, handler http.Handler) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("%s: %w", config.ErrServerStartup, err)
	}
	return Serve(ctx, ln, handler)
}

// Serve answers requests on ln until ctx is cancelled, then gives
// in-flight requests up to ShutdownTimeout to finish. It takes ownership
// of ln.
func Serve(ctx context.Context, ln net.Listener, handler http.Handler) error {
	srv := &http.Server{
		Handler:      handler,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: config.ServerWriteTimeout,
		IdleTimeout:  config.ServerIdleTimeout,
	}
	log := slog.With(
		slog.String(config.LogKeyComponent, config.CompServer),
		slog.String(config.LogKeyAddr, ln.Addr().String()),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info(config.MsgServerListen)
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s: %w", config.ErrServerStartup, err)
		}
		return nil
	})

	// Either the caller cancelled or Serve died. Shutdown covers both.
	g.Go(func() error {
		<-gctx.Done()
		log.Info(config.MsgServerStop)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("%s: %w", config.ErrServerShutdown, err)
		}
		return nil
	})

	return g.Wait()
}
