package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newStoresCmd groups registry maintenance commands.
func newStoresCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stores",
		Short: "Store registry maintenance",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "rebuild",
		Short: "Rebuilds the store registry from the full draw history",
		Long: `Folds every persisted round into a fresh registry. Likes, dislikes, phone
numbers and coordinates of stores already in the registry are kept, and retired
stores stay retired.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if _, err := appInstance.RebuildStores(cmd.Context()); err != nil {
				return fmt.Errorf("rebuild stores: %w", err)
			}
			return nil
		},
	})
	return cmd
}
