package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func policyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Show and change encryption policy flags",
	}
	cmd.AddCommand(policyShowCmd(), policySetCmd())
	return cmd
}

func policyShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [room-id]",
		Short: "Show global policy, or one room's policy",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := ensureWire()
			if err != nil {
				return err
			}

			if len(args) == 1 {
				p, err := w.Store.RoomPolicy(args[0])
				if err != nil {
					return err
				}
				fmt.Printf("Room %s\n", p.RoomID)
				fmt.Printf("  block unverified devices:    %v\n", p.BlockUnverifiedDevices)
				fmt.Printf("  encrypt for invited members: %v\n", p.EncryptForInvitedMembers)
				fmt.Printf("  share history:               %v\n", p.ShareHistory)
				return nil
			}

			p, err := w.Store.GlobalPolicy()
			if err != nil {
				return err
			}
			fmt.Printf("blacklist unverified devices: %v\n", p.BlacklistUnverifiedDevices)
			fmt.Printf("key gossiping enabled:        %v\n", p.KeyGossipingEnabled)
			fmt.Printf("share keys on invite:         %v\n", p.ShareKeysOnInvite)
			return nil
		},
	}
}

func policySetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <flag> <true|false>",
		Short: "Set a global policy flag (blacklist, gossip, share-on-invite)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := ensureWire()
			if err != nil {
				return err
			}

			value, err := strconv.ParseBool(args[1])
			if err != nil {
				return fmt.Errorf("invalid value %q", args[1])
			}

			switch args[0] {
			case "blacklist":
				err = w.Store.SetGlobalBlacklistUnverifiedDevices(value)
			case "gossip":
				err = w.Store.SetKeyGossipingEnabled(value)
			case "share-on-invite":
				err = w.Store.SetShareKeysOnInvite(value)
			default:
				return fmt.Errorf("unknown flag %q", args[0])
			}
			if err != nil {
				return err
			}
			fmt.Printf("%s = %v\n", args[0], value)
			return nil
		},
	}
}
