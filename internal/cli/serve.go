package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/policyimport/internal/config"
	"github.com/JonMunkholm/policyimport/internal/core"
	"github.com/JonMunkholm/policyimport/internal/metrics"
	"github.com/JonMunkholm/policyimport/internal/store"
	"github.com/JonMunkholm/policyimport/internal/web"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP upload and query server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts.cfg)
		},
	}
}

func storeOptions(cfg *config.Config) []store.Option {
	return []store.Option{
		store.WithPool(cfg.Store.StorePool()),
		store.WithBusyTimeout(cfg.Store.BusyTimeout),
	}
}

// newImporter builds the pipeline from configuration. Metrics are recorded
// on the default registry when enabled.
func newImporter(cfg *config.Config) (*core.Importer, error) {
	enc, err := core.LookupEncoding(cfg.Import.SourceEncoding)
	if err != nil {
		return nil, err
	}

	opts := []core.Option{
		core.WithStoreOptions(storeOptions(cfg)...),
		core.WithSourceEncoding(enc),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, core.WithRecorder(metrics.Default()))
	}
	return core.NewImporter(opts...), nil
}

// runServe serves until SIGINT or SIGTERM, then waits for running imports
// before stopping the listener.
func runServe(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("configuration loaded",
		"addr", cfg.Server.Addr(),
		"store", config.MaskStorePath(cfg.Store.Path),
		"import_max_concurrent", cfg.Import.MaxConcurrent,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	st, err := store.Open(ctx, cfg.Store.Path, storeOptions(cfg)...)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	importer, err := newImporter(cfg)
	if err != nil {
		return err
	}
	limiter := core.NewImportLimiter(cfg.Import.MaxConcurrent, cfg.Import.MaxWait)
	server := web.NewServer(cfg, st, importer, limiter)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if status := limiter.Status(); status.Active > 0 {
		slog.Info("waiting for imports to complete", "active", status.Active)
		if err := limiter.WaitForDrain(shutdownCtx); err != nil {
			slog.Warn("imports did not complete in time", "error", err)
		} else {
			slog.Info("all imports completed")
		}
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	slog.Info("server stopped")
	return nil
}
