package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func sessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect stored group sessions",
	}
	cmd.AddCommand(sessionsListCmd(), sessionsSharedCmd())
	return cmd
}

func sessionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <room-id>",
		Short: "List the inbound group sessions of a room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := ensureWire()
			if err != nil {
				return err
			}

			sessions, err := w.Store.InboundSessionsByRoom(args[0])
			if err != nil {
				return err
			}
			if len(sessions) == 0 {
				fmt.Println("No sessions.")
				return nil
			}
			for _, sess := range sessions {
				flags := ""
				if sess.SharedHistory {
					flags += " shared-history"
				}
				if sess.BackedUp {
					flags += " backed-up"
				}
				fmt.Printf("%s  sender=%s index=%d%s\n",
					sess.SessionID, sess.SenderKey, sess.FirstKnownIndex, flags)
			}
			return nil
		},
	}
}

func sessionsSharedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shared <room-id> <session-id>",
		Short: "Show who a session was shared with",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := ensureWire()
			if err != nil {
				return err
			}

			shared, err := w.Store.SharedWith(args[0], args[1])
			if err != nil {
				return err
			}
			if len(shared) == 0 {
				fmt.Println("Not shared with anyone.")
				return nil
			}
			for user, index := range shared {
				fmt.Printf("%s  from chain index %d\n", user, index)
			}
			return nil
		},
	}
}
