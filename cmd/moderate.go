package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newModerateCmd creates the 'moderate' subcommand.
func newModerateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "moderate",
		Short: "Moves stores over the dislike threshold into the retired registry",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			result, err := appInstance.Moderate(cmd.Context())
			if err != nil {
				return fmt.Errorf("moderate stores: %w", err)
			}
			appInstance.Logger().Info("moderation finished",
				zap.Int("moved", len(result.Moved)),
				zap.Int("remaining", result.Remaining),
				zap.Int("retired", result.Retired),
			)
			return nil
		},
	}
}
