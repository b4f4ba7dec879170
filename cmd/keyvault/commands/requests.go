package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"keyvault/internal/domain"
)

func requestsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "requests",
		Short: "List, cancel and prune outgoing key requests",
	}
	cmd.AddCommand(requestsListCmd(), requestsCancelCmd(), requestsPruneCmd())
	return cmd
}

func requestsListCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List outgoing key requests, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := ensureWire()
			if err != nil {
				return err
			}

			var cursor domain.Cursor
			for {
				page, next, err := w.Store.PageRequests(cursor, limit)
				if err != nil {
					return err
				}
				for _, req := range page {
					fmt.Printf("%s  %s  room=%s session=%s from=%d\n",
						req.RequestID, req.State, req.Body.RoomID,
						req.Body.SessionID, req.FromIndex)
				}
				if next == 0 {
					return nil
				}
				cursor = next
			}
		},
	}
	cmd.Flags().IntVar(&limit, "page-size", 50, "entries per page")
	return cmd
}

func requestsCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <request-id>",
		Short: "Cancel an outgoing key request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := ensureWire()
			if err != nil {
				return err
			}
			if err := w.Gossip.CancelRequest(args[0]); err != nil {
				return err
			}
			fmt.Println("Cancelled.")
			return nil
		},
	}
}

func requestsPruneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Delete all cancelled requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := ensureWire()
			if err != nil {
				return err
			}
			n, err := w.Gossip.PruneCancelled()
			if err != nil {
				return err
			}
			fmt.Printf("Removed %d requests.\n", n)
			return nil
		},
	}
}
