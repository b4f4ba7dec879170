package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"keyvault/internal/store"
)

func wipeCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "wipe",
		Short: "Delete the store from disk",
		Long:  "Deletes the database and its side files. All key material, sessions and trust state are lost.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to wipe without --yes")
			}
			if err := store.DeleteStore(cfg.StorePath); err != nil {
				return err
			}
			fmt.Printf("Deleted %s.\n", cfg.StorePath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	return cmd
}
