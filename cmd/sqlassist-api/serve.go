package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// runServer serves until ctx is done or the listener fails. A listener
// failure, such as a port already in use, is returned so the process can exit
// non-zero; a shutdown triggered by ctx returns nil once drained.
func runServer(ctx context.Context, logger *slog.Logger, server *http.Server, drainTimeout time.Duration) error {
	listenErr := make(chan error, 1)
	go func() {
		logger.Info("starting api server", slog.String("addr", server.Addr))
		err := server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		listenErr <- err
	}()

	select {
	case err := <-listenErr:
		if err != nil {
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		_ = server.Close()
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}
