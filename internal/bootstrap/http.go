package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/assesskit/reportgen/config"
	httpx "github.com/assesskit/reportgen/internal/http"
)

type httpServerDeps struct {
	Config   config.HTTPConfig
	Services *ServiceContainer
	Logger   *slog.Logger
}

// runHTTPServer serves the report API until the context is cancelled, then
// drains in-flight requests within the configured shutdown grace period.
func runHTTPServer(ctx context.Context, deps httpServerDeps) error {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	handler := httpx.NewRouter(httpx.RouterServices{
		Jobs:   deps.Services.Jobs,
		Logger: logger,
	})

	server := &http.Server{
		Addr:         deps.Config.Addr,
		Handler:      handler,
		ReadTimeout:  deps.Config.ReadTimeout,
		WriteTimeout: deps.Config.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.InfoContext(ctx, "http server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), deps.Config.ShutdownGrace)
	defer cancel()

	logger.Info("shutting down http server", "grace", deps.Config.ShutdownGrace)
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return <-errCh
}
