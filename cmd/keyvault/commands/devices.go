package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func devicesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "Inspect and verify tracked devices",
	}
	cmd.AddCommand(devicesListCmd(), devicesVerifyCmd(), devicesUsersCmd())
	return cmd
}

func devicesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <user-id>",
		Short: "List a user's devices and their trust state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := ensureWire()
			if err != nil {
				return err
			}

			devices, err := w.Store.Devices(args[0])
			if err != nil {
				return err
			}
			if len(devices) == 0 {
				fmt.Println("No devices.")
				return nil
			}
			for _, d := range devices {
				trust := "unverified"
				switch {
				case d.Trust.CrossSignedVerified && d.Trust.LocallyVerified:
					trust = "verified (local+cross-signed)"
				case d.Trust.CrossSignedVerified:
					trust = "verified (cross-signed)"
				case d.Trust.LocallyVerified:
					trust = "verified (local)"
				}
				fmt.Printf("%s  %s  %s\n", d.DeviceID, d.IdentityKey, trust)
			}
			return nil
		},
	}
}

func devicesVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <user-id> <device-id>",
		Short: "Mark a device as locally verified",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := ensureWire()
			if err != nil {
				return err
			}

			d, found, err := w.Store.Device(args[0], args[1])
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("unknown device %s/%s", args[0], args[1])
			}

			verified := true
			if err := w.Store.SetTrust(args[0], args[1], d.Trust.CrossSignedVerified, &verified); err != nil {
				return err
			}
			fmt.Printf("Verified %s/%s.\n", args[0], args[1])
			return nil
		},
	}
}

func devicesUsersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "List every user with known devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := ensureWire()
			if err != nil {
				return err
			}

			users, err := w.Store.Users()
			if err != nil {
				return err
			}
			for _, u := range users {
				fmt.Println(u)
			}
			return nil
		},
	}
}
