package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/realtime-cpi-catalog/internal/app"
	"github.com/JakeFAU/realtime-cpi-catalog/internal/catalog"
)

const (
	shutdownTimeout = 10 * time.Second
	drainTimeout    = 30 * time.Second
	drainPoll       = 100 * time.Millisecond
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Runs once a day at the time read from the schedule file",
		Long: `Polls the schedule file for an HH:MM time and starts a full run each
time it is reached. With server.enabled the HTTP API is served alongside, so
runs can also be triggered and inspected remotely.`,
		Args: cobra.NoArgs,
		RunE: runWatchCommand,
	}
}

func runWatchCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	logger := appInstance.Logger().Named("watch")
	runner := appInstance.Runner()

	g, gctx := errgroup.WithContext(cmd.Context())

	g.Go(func() error {
		err := appInstance.Watcher().Run(gctx, func(ctx context.Context) {
			scheduledRun(ctx, runner, logger)
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if appInstance.ServerEnabled() {
		srv := &http.Server{
			Addr:              appInstance.Addr(),
			Handler:           appInstance.APIServer(gctx).Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("http server started", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve http: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("server shutdown error", zap.Error(err))
			}
			return nil
		})
	}

	err = g.Wait()
	logger.Info("shutdown initiated")
	drain(runner, logger)
	return err
}

// scheduledRun performs one full run for a schedule window. A run already
// started through the API makes the window a no-op.
func scheduledRun(ctx context.Context, runner app.Runner, logger *zap.Logger) {
	summary, err := runner.RunOnce(ctx)
	switch {
	case errors.Is(err, catalog.ErrRunInProgress):
		logger.Warn("scheduled run skipped", zap.Error(err))
	case err != nil:
		logger.Error("scheduled run failed", zap.String("run_id", summary.RunID), zap.Error(err))
	default:
		logger.Info("scheduled run finished",
			zap.String("run_id", summary.RunID),
			zap.Int("unique_links", summary.UniqueLinks),
			zap.Int("products", summary.Extraction.Appended),
		)
	}
}

// drain waits for a background run to release the runner so its stores are
// not closed under it.
func drain(runner app.Runner, logger *zap.Logger) {
	deadline := time.Now().Add(drainTimeout)
	for runner.Status().State != catalog.RunStateIdle {
		if time.Now().After(deadline) {
			logger.Warn("run still active at shutdown", zap.String("run_id", runner.Status().RunID))
			return
		}
		time.Sleep(drainPoll)
	}
}
