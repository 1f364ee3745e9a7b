package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/ssargent/rtsq/pkg/message"
)

type journalView struct {
	Offset     int64  `json:"offset"`
	ID         string `json:"id"`
	Label      string `json:"label"`
	From       string `json:"from,omitempty"`
	ReturnedAt string `json:"returned_at,omitempty"`
	Size       int    `json:"size"`
}

func newJournalCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "journal",
		Short: "Show the journal of returned messages",
		Long: `List every message that has been returned to its source queue, oldest first.

Example:
  rtsq journal -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			out := cmd.OutOrStdout()

			svc, err := a.openServices()
			if err != nil {
				return err
			}
			defer svc.Close()

			if svc.journal == nil {
				return errors.New("the journal is disabled in the configuration")
			}

			entries, err := svc.journal.Entries()
			if err != nil {
				return err
			}

			views := make([]journalView, 0, len(entries))
			for _, e := range entries {
				v := journalView{
					Offset: e.Offset,
					ID:     e.Message.ID.String(),
					Label:  e.Message.Label,
					Size:   e.Message.Size(),
				}
				if h, err := e.Message.Headers(); err == nil {
					v.From, _ = h.Get(message.HeaderReturnedFrom)
					v.ReturnedAt, _ = h.Get(message.HeaderReturnedAt)
				}
				views = append(views, v)
			}

			if a.output == formatJSON {
				return printJSON(out, views)
			}
			if len(views) == 0 {
				fmt.Fprintln(out, "Journal is empty")
				return nil
			}

			rows := make([][]string, 0, len(views))
			for _, v := range views {
				returnedAt := v.ReturnedAt
				if t, err := time.Parse(time.RFC3339Nano, v.ReturnedAt); err == nil {
					returnedAt = t.Format(time.RFC3339)
				}
				rows = append(rows, []string{strconv.FormatInt(v.Offset, 10), v.ID, truncate(v.Label, 30), v.From, returnedAt})
			}
			printTable(out, []string{"Offset", "ID", "Label", "From", "Returned"}, rows)
			return nil
		},
	}
}
