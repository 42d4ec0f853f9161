// Package cmd defines and implements the CLI commands for the lottocrawler executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/JakeFAU/lotto-store-crawler/internal/app"
)

var cfgFile string

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// newApp is the application factory. It's a variable so tests can swap it.
var newApp = func(ctx context.Context, path string) (*app.App, error) {
	return app.Load(ctx, path)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lottocrawler",
		Short: "Harvests lottery draw results and the stores that sold winning tickets.",
		Long: `lottocrawler keeps a local, resumable archive of 6/45 draw results and a
registry of the stores that sold first and second tier tickets. Each command is
one batch pass over the snapshot files in the data directory.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML/JSON/TOML); env vars use the LOTTO_ prefix")

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newStoresCmd())
	cmd.AddCommand(newModerateCmd())
	cmd.AddCommand(newEnrichCmd())
	cmd.AddCommand(newServeCmd())

	return cmd
}

// closeApp releases the services an App holds. It's a variable so tests can observe it.
var closeApp = func(a *app.App) error {
	return a.Close()
}

func resolveApp(ctx context.Context) (*app.App, error) {
	appInstance, ok := ctx.Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point. SIGINT/SIGTERM cancel the command context so batch passes
// stop between units of work and flush what they have.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := execute(ctx, newRootCmd())
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "lottocrawler:", err)
		os.Exit(1)
	}
}

// execute runs root and closes the App the executed command built, whether or not it failed.
func execute(ctx context.Context, root *cobra.Command) error {
	executed, err := root.ExecuteContextC(ctx)
	if executed == nil || executed.Context() == nil {
		return err
	}
	appInstance, ok := executed.Context().Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		return err
	}
	if closeErr := closeApp(appInstance); closeErr != nil {
		err = multierr.Append(err, fmt.Errorf("close application services: %w", closeErr))
	}
	return err
}
