package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func backupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Inspect and rotate key backup state",
	}
	cmd.AddCommand(backupStatusCmd(), backupVersionCmd())
	return cmd
}

func backupStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show backup progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := ensureWire()
			if err != nil {
				return err
			}

			counts, err := w.Backup.Progress()
			if err != nil {
				return err
			}
			version, err := w.Store.BackupVersion()
			if err != nil {
				return err
			}
			if version == "" {
				version = "(none)"
			}
			fmt.Printf("Version: %s\nBacked up: %d/%d sessions\n",
				version, counts.BackedUp, counts.Total)
			return nil
		},
	}
}

func backupVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version <version>",
		Short: "Adopt a new backup version, resetting markers when it changed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := ensureWire()
			if err != nil {
				return err
			}
			if err := w.Backup.SyncVersion(args[0]); err != nil {
				return err
			}
			fmt.Printf("Backup version is %s.\n", args[0])
			return nil
		},
	}
}
