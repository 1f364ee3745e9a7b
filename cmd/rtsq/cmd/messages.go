package cmd

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/segmentio/ksuid"
	"github.com/spf13/cobra"
	"github.com/ssargent/rtsq/pkg/message"
)

type messageView struct {
	ID            string            `json:"id"`
	Label         string            `json:"label"`
	SentAt        time.Time         `json:"sent_at"`
	Size          int               `json:"size"`
	SourceQueue   string            `json:"source_queue,omitempty"`
	Headers       map[string]string `json:"headers,omitempty"`
	HeaderError   string            `json:"header_error,omitempty"`
	ExtensionSize int               `json:"extension_size"`
}

func newMessageView(m *message.Message) messageView {
	v := messageView{
		ID:            m.ID.String(),
		Label:         m.Label,
		SentAt:        m.SentAt,
		Size:          m.Size(),
		ExtensionSize: len(m.Extension),
	}
	h, err := m.Headers()
	if err != nil {
		v.HeaderError = err.Error()
		return v
	}
	v.Headers = h.ToMap()
	v.SourceQueue, _ = h.Get(message.HeaderFailedQueue)
	return v
}

func newEnqueueCmd() *cobra.Command {
	enqueueCmd := &cobra.Command{
		Use:   "enqueue <queue>",
		Short: "Put a message into a queue",
		Long: `Put a message into a queue, with headers encoded into its extension.

Examples:
  rtsq enqueue error --label order-created --body '{"id":42}' \
    --header NServiceBus.FailedQ=orders --header trace=abc`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			label, _ := cmd.Flags().GetString("label")
			body, _ := cmd.Flags().GetString("body")
			bodyFile, _ := cmd.Flags().GetString("body-file")
			pairs, _ := cmd.Flags().GetStringArray("header")

			payload := []byte(body)
			if bodyFile != "" {
				data, err := os.ReadFile(bodyFile)
				if err != nil {
					return err
				}
				payload = data
			}

			h, err := parsePairs(pairs)
			if err != nil {
				return err
			}
			m := message.New(label, payload)
			if err := m.SetHeaders(h); err != nil {
				return err
			}

			svc, err := a.openServices()
			if err != nil {
				return err
			}
			defer svc.Close()

			if err := svc.spool.Enqueue(args[0], m); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), m.ID.String())
			return nil
		},
	}

	enqueueCmd.Flags().String("label", "", "Message label")
	enqueueCmd.Flags().String("body", "", "Message body")
	enqueueCmd.Flags().String("body-file", "", "Read the message body from a file")
	enqueueCmd.Flags().StringArrayP("header", "H", nil, "Header as key=value (repeatable, order kept)")
	return enqueueCmd
}

func newListCmd() *cobra.Command {
	listCmd := &cobra.Command{
		Use:   "list [queue]",
		Short: "List queues, or the messages in one queue",
		Long: `Without a queue, list every queue and its depth. With a queue, list its
messages in arrival order.

Examples:
  rtsq list
  rtsq list error --limit 20`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			limit, _ := cmd.Flags().GetInt("limit")
			out := cmd.OutOrStdout()

			svc, err := a.openServices()
			if err != nil {
				return err
			}
			defer svc.Close()

			if len(args) == 0 {
				queues, err := svc.spool.Queues()
				if err != nil {
					return err
				}
				if a.output == formatJSON {
					return printJSON(out, queues)
				}
				if len(queues) == 0 {
					fmt.Fprintln(out, "No queues found")
					return nil
				}
				rows := make([][]string, 0, len(queues))
				for _, q := range queues {
					rows = append(rows, []string{q.Name, strconv.Itoa(q.Count)})
				}
				printTable(out, []string{"Queue", "Messages"}, rows)
				return nil
			}

			msgs, err := svc.spool.List(args[0], limit)
			if err != nil {
				return err
			}
			views := make([]messageView, 0, len(msgs))
			for _, m := range msgs {
				views = append(views, newMessageView(m))
			}
			if a.output == formatJSON {
				return printJSON(out, views)
			}
			if len(views) == 0 {
				fmt.Fprintln(out, "No messages found")
				return nil
			}

			rows := make([][]string, 0, len(views))
			for _, v := range views {
				source := v.SourceQueue
				if v.HeaderError != "" {
					source = "(corrupt headers)"
				}
				rows = append(rows, []string{
					v.ID,
					truncate(v.Label, 30),
					v.SentAt.Format(time.RFC3339),
					strconv.Itoa(v.Size),
					source,
				})
			}
			printTable(out, []string{"ID", "Label", "Sent", "Size", "Source Queue"}, rows)
			return nil
		},
	}

	listCmd.Flags().Int("limit", 0, "Maximum number of messages (0 for all)")
	return listCmd
}

func newHeadersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "headers <queue> <id>",
		Short: "Show the decoded headers of a message",
		Long: `Decode and print the headers stored in a message's extension.

Example:
  rtsq headers error 2a8Xz3vQm7LhK9pR1tYw4nB6cEo`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd)
			id, err := ksuid.Parse(args[1])
			if err != nil {
				return fmt.Errorf("invalid message id %q: %w", args[1], err)
			}

			svc, err := a.openServices()
			if err != nil {
				return err
			}
			defer svc.Close()

			m, err := svc.spool.Get(args[0], id)
			if err != nil {
				return err
			}
			h, err := m.Headers()
			if err != nil {
				return err
			}
			return printHeaders(cmd, a.output, h)
		},
	}
}
