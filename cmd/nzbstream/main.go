package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/datallboy/nzbstream/internal/api"
	"github.com/datallboy/nzbstream/internal/app"
	"github.com/datallboy/nzbstream/internal/cache"
	"github.com/datallboy/nzbstream/internal/infra/config"
	"github.com/datallboy/nzbstream/internal/infra/logger"
	"github.com/datallboy/nzbstream/internal/nntp"
	"github.com/datallboy/nzbstream/internal/store"
	"github.com/labstack/echo/v5"
	"github.com/spf13/cobra"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:           "nzbstream",
		Short:         "Stream files straight out of Usenet",
		Long:          `nzbstream reads the files described by an NZB directly from Usenet providers, serving any byte range without writing article data to disk.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "config file path")

	rootCmd.AddCommand(newStreamCmd(), newImportCmd(), newListCmd(), newServeCmd())

	// Cancel everything on Ctrl+C
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// bootstrap loads the config and builds the shared context. withNNTP and
// withStore select which collaborators get opened.
func bootstrap(ctx context.Context, withNNTP, withStore bool) (*app.Context, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}

	log, err := logger.New(cfg.Log.Path, logger.ParseLevel(cfg.Log.Level), cfg.Log.IncludeStdout)
	if err != nil {
		return nil, fmt.Errorf("logger error: %w", err)
	}

	appCtx := app.NewContext(cfg, log)

	if withStore {
		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return nil, fmt.Errorf("store error: %w", err)
		}
		appCtx.Store = cache.NewModelCache(st, 32)
	}

	if withNNTP {
		if len(cfg.Servers) == 0 {
			appCtx.Close()
			return nil, errors.New("no servers configured")
		}
		mgr, err := nntp.NewManager(appCtx)
		if err != nil {
			appCtx.Close()
			return nil, err
		}
		appCtx.NNTP = mgr
	}

	return appCtx, nil
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the NZB library and byte-range streams over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			appCtx, err := bootstrap(ctx, true, true)
			if err != nil {
				return err
			}
			defer appCtx.Close()

			e := echo.New()
			api.RegisterRoutes(e, appCtx)

			srv := &http.Server{
				Addr:              ":" + appCtx.Config.Port,
				Handler:           e,
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				appCtx.Logger.Info("Listening on %s", srv.Addr)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			appCtx.Logger.Info("Shutting down...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), appCtx.Config.Stream.CloseTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}
