package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print account identity and backup progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := ensureWire()
			if err != nil {
				return err
			}

			guard, err := w.Store.AcquireAccount(context.Background())
			if err != nil {
				return err
			}
			acc := *guard.Account()
			guard.Release()

			counts, err := w.Backup.Progress()
			if err != nil {
				return err
			}
			version, err := w.Store.BackupVersion()
			if err != nil {
				return err
			}

			fmt.Printf("Device ID:    %s\n", acc.DeviceID)
			fmt.Printf("Identity key: %s\n", acc.IdentityKey)
			fmt.Printf("Signing key:  %s\n", acc.SigningKey)
			if version == "" {
				version = "(none)"
			}
			fmt.Printf("Backup:       version %s, %d/%d sessions backed up\n",
				version, counts.BackedUp, counts.Total)
			return nil
		},
	}
}
