package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"keyvault/internal/domain"
)

func auditCmd() *cobra.Command {
	var kinds []string
	var limit int
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Page through the gossip audit trail, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := ensureWire()
			if err != nil {
				return err
			}

			filter := make([]domain.AuditKind, len(kinds))
			for i, k := range kinds {
				filter[i] = domain.AuditKind(k)
			}

			var cursor domain.Cursor
			for {
				page, next, err := w.Store.PageAudit(filter, cursor, limit)
				if err != nil {
					return err
				}
				for _, e := range page {
					when := time.Unix(e.CreatedUTC, 0).UTC().Format(time.RFC3339)
					fmt.Printf("%s  %-17s room=%s session=%s", when, e.Kind, e.RoomID, e.SessionID)
					if e.UserID != "" {
						fmt.Printf(" peer=%s/%s", e.UserID, e.DeviceID)
					}
					if e.Detail != "" {
						fmt.Printf(" detail=%s", e.Detail)
					}
					fmt.Println()
				}
				if next == 0 {
					return nil
				}
				cursor = next
			}
		},
	}
	cmd.Flags().StringSliceVar(&kinds, "kind", nil,
		"filter by kind (OUTGOING_REQUEST, INCOMING_REQUEST, WITHHELD, OUTGOING_FORWARD, INCOMING_FORWARD)")
	cmd.Flags().IntVar(&limit, "page-size", 50, "entries per page")
	return cmd
}
