package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-cpi-catalog/internal/app"
	"github.com/JakeFAU/realtime-cpi-catalog/internal/catalog"
)

// phaseFunc selects which runner operation a command drives.
type phaseFunc func(r app.Runner, ctx context.Context) (catalog.RunSummary, error)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Runs discovery then extraction once",
		Long: `Crawls every category listing into the link store, waits for the
configured phase gap, then extracts one product record per unique link.`,
		Args: cobra.NoArgs,
		RunE: phaseCommand("run", app.Runner.RunOnce),
	}
}

func newDiscoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "Rebuilds the link store from the category listings",
		Args:  cobra.NoArgs,
		RunE:  phaseCommand("discover", app.Runner.Discover),
	}
}

func newExtractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract",
		Short: "Extracts product records for the links already stored",
		Args:  cobra.NoArgs,
		RunE:  phaseCommand("extract", app.Runner.Extract),
	}
}

// phaseCommand runs one runner operation and prints its summary as JSON.
// An interrupted run still prints what it collected and exits cleanly.
func phaseCommand(name string, phase phaseFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		appInstance, err := resolveApp(cmd.Context())
		if err != nil {
			return err
		}
		logger := appInstance.Logger().With(zap.String("command", name))

		summary, err := phase(appInstance.Runner(), cmd.Context())
		if summary.RunID != "" {
			if perr := printSummary(cmd, summary); perr != nil {
				return perr
			}
		}
		switch {
		case err == nil:
			logger.Info("command finished", zap.String("run_id", summary.RunID))
			return nil
		case errors.Is(err, context.Canceled):
			logger.Warn("command interrupted", zap.String("run_id", summary.RunID))
			return nil
		default:
			return fmt.Errorf("%s: %w", name, err)
		}
	}
}

func printSummary(cmd *cobra.Command, summary catalog.RunSummary) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}
