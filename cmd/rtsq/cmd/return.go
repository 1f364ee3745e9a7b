package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/ksuid"
	"github.com/spf13/cobra"
	"github.com/ssargent/rtsq/pkg/returner"
)

type returnView struct {
	ID         string    `json:"id"`
	From       string    `json:"from"`
	To         string    `json:"to,omitempty"`
	Moved      bool      `json:"moved"`
	ReturnedAt time.Time `json:"returned_at,omitempty"`
	Error      string    `json:"error,omitempty"`
}

func newReturnView(r *returner.Result) returnView {
	v := returnView{
		ID:         r.ID.String(),
		From:       r.From,
		To:         r.To,
		Moved:      r.Moved,
		ReturnedAt: r.ReturnedAt,
	}
	if r.Err != nil {
		v.Error = r.Err.Error()
	}
	return v
}

func newReturnCmd() *cobra.Command {
	returnCmd := &cobra.Command{
		Use:   "return [id]",
		Short: "Return failed messages to their source queue",
		Long: `Move a message from the error queue back to the queue named by its
NServiceBus.FailedQ header. With --all, every message in the error queue is
returned; failures are reported per message and the rest still go through.

Examples:
  rtsq return 2a8Xz3vQm7LhK9pR1tYw4nB6cEo
  rtsq return --all --queue errors`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			all, _ := cmd.Flags().GetBool("all")
			queue, _ := cmd.Flags().GetString("queue")
			if queue == "" {
				queue = a.config.ErrorQueue
			}

			if all == (len(args) == 1) {
				return errors.New("give either a message id or --all")
			}

			svc, err := a.openServices()
			if err != nil {
				return err
			}
			defer svc.Close()

			var results []*returner.Result
			var runErr error
			if all {
				results, runErr = svc.returner.ReturnAll(cmd.Context(), queue)
			} else {
				id, err := ksuid.Parse(args[0])
				if err != nil {
					return fmt.Errorf("invalid message id %q: %w", args[0], err)
				}
				var result *returner.Result
				result, runErr = svc.returner.Return(cmd.Context(), queue, id)
				results = append(results, result)
			}

			if err := printReturns(cmd, a.output, results); err != nil {
				return err
			}
			return runErr
		},
	}

	returnCmd.Flags().Bool("all", false, "Return every message in the error queue")
	returnCmd.Flags().String("queue", "", "Error queue (default from config)")
	return returnCmd
}

func printReturns(cmd *cobra.Command, format string, results []*returner.Result) error {
	out := cmd.OutOrStdout()
	views := make([]returnView, 0, len(results))
	for _, r := range results {
		if r != nil {
			views = append(views, newReturnView(r))
		}
	}

	if format == formatJSON {
		return printJSON(out, views)
	}
	if len(views) == 0 {
		fmt.Fprintln(out, "No messages returned")
		return nil
	}

	rows := make([][]string, 0, len(views))
	for _, v := range views {
		status := "returned"
		if v.Error != "" {
			status = v.Error
		}
		rows = append(rows, []string{v.ID, v.From, v.To, status})
	}
	printTable(out, []string{"ID", "From", "To", "Status"}, rows)
	return nil
}
