// Package cmd defines and implements the CLI commands for the harvester executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-cpi-catalog/internal/api"
	"github.com/JakeFAU/realtime-cpi-catalog/internal/app"
	"github.com/JakeFAU/realtime-cpi-catalog/internal/config"
	"github.com/JakeFAU/realtime-cpi-catalog/internal/logging"
	"github.com/JakeFAU/realtime-cpi-catalog/internal/schedule"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application interface that commands will use.
// This allows us to inject a fake app during tests.
type App interface {
	Close()
	Logger() *zap.Logger
	Runner() app.Runner
	Watcher() *schedule.Watcher
	APIServer(runCtx context.Context) *api.Server
	Addr() string
	ServerEnabled() bool
}

// newApp is the application factory. It's a variable so tests can
// replace it with a fake factory.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// newRootCmd creates and configures the root command. The returned func
// closes the application if a subcommand built one, whether or not it failed.
func newRootCmd() (*cobra.Command, func()) {
	var (
		cfgFile     string
		appInstance App
	)

	cmd := &cobra.Command{
		Use:   "harvester",
		Short: "Discovers and extracts product records from a paginated catalog.",
		Long: `harvester drives a pool of remote browser sessions through every
category listing of a catalog, stores the deduplicated product links and then
extracts one structured record per product page.`,
		SilenceUsage: true,

		// Builds the application before the subcommand's RunE.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(logging.Options{
				Development: cfg.Logging.Development,
				Level:       cfg.Logging.Level,
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			appInstance, err = newApp(cmd.Context(), cfg, logger)
			if err != nil {
				_ = logger.Sync()
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")

	cmd.AddCommand(newRunCmd(), newDiscoverCmd(), newExtractCmd(), newWatchCmd())

	closeApp := func() {
		if appInstance != nil {
			appInstance.Close()
			_ = appInstance.Logger().Sync()
		}
	}
	return cmd, closeApp
}

// execute runs the command tree against args and releases the application.
func execute(ctx context.Context, args []string, out io.Writer) error {
	root, closeApp := newRootCmd()
	defer closeApp()
	root.SetArgs(args)
	root.SetOut(out)
	return root.ExecuteContext(ctx)
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point. SIGINT and SIGTERM cancel the command's
// context; workers finish their current item and appended rows are kept.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := execute(ctx, os.Args[1:], os.Stdout); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, "harvester:", err)
		os.Exit(1)
	}
}
