package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newCrawlCmd creates the 'crawl' subcommand.
func newCrawlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl",
		Short: "Fetches every round after the newest persisted one",
		Long: `Resumes from one past the highest persisted round and walks forward until the
source reports that the next round does not exist. Each committed round is merged
into the store registry; history and registries are checkpointed periodically and
flushed at the end.`,
		RunE: runCrawlCommand,
	}
}

func runCrawlCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	logger := appInstance.Logger()

	ctrl, err := appInstance.NewController()
	if err != nil {
		return fmt.Errorf("build crawl controller: %w", err)
	}
	tally, err := ctrl.Run(cmd.Context())
	fields := []zap.Field{
		zap.String("run_id", tally.RunID),
		zap.Int("start_round", tally.StartRound),
		zap.Int("next_round", tally.NextRound),
		zap.Int("committed", tally.Committed),
		zap.Int("degraded", tally.Degraded),
		zap.Int("unavailable", tally.Unavailable),
		zap.Int("hook_errors", tally.HookErrors),
		zap.Int("checkpoints", tally.Checkpoints),
		zap.Int("stores_created", tally.Merge.Created),
		zap.Int("wins_added", tally.Merge.WinsAdded),
		zap.Bool("rebuilt", tally.Rebuilt),
		zap.Bool("stalled", tally.Stalled),
		zap.Stringer("state", ctrl.State()),
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("crawl failed", append(fields, zap.Error(err))...)
		return fmt.Errorf("run crawl: %w", err)
	}
	if tally.Stalled {
		logger.Warn("crawl stopped at an unavailable round", fields...)
		return nil
	}
	logger.Info("crawl finished", fields...)
	return nil
}
