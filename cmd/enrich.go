package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newEnrichCmd creates the 'enrich' subcommand.
func newEnrichCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enrich",
		Short: "Fills missing store coordinates through the configured geocoders",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			tally, err := appInstance.Enrich(cmd.Context())
			fields := []zap.Field{
				zap.Int("updated", tally.Updated),
				zap.Int("not_found", tally.NotFound),
				zap.Int("failed", tally.Failed),
				zap.Int("skipped", tally.Skipped),
				zap.Int("online", tally.Online),
			}
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("enrich stores: %w", err)
			}
			appInstance.Logger().Info("enrichment finished", fields...)
			return nil
		},
	}
}
