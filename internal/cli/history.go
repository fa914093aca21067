package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jimshare/bae-ai/internal/output"
	"github.com/jimshare/bae-ai/internal/store"
)

func newHistoryCmd() *cobra.Command {
	var (
		from  string
		limit int
		stats bool
		full  bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show logged SMS exchanges",
		Long: `Lists recent messages from the message log, newest first.

Examples:
  bae history
  bae history --from +15550001111 --limit 5
  bae history --stats`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cfg.Store.Enabled {
				return fmt.Errorf("the message log is disabled (store.enabled = false)")
			}
			s, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer s.Close()
			f := formatter(cmd)

			if stats {
				st, err := s.Stats()
				if err != nil {
					return err
				}
				if f.IsJSON() {
					return f.JSON(st)
				}
				f.Heading("Message log")
				f.KeyValue("messages", 16, fmt.Sprint(st.Total))
				f.KeyValue("senders", 16, fmt.Sprint(st.DistinctSenders))
				f.KeyValue("failed", 16, fmt.Sprint(st.Failed))
				f.KeyValue("rate limited", 16, fmt.Sprint(st.RateLimited))
				f.KeyValue("avg latency", 16, fmt.Sprintf("%.0fms", st.AverageLatencyMS))
				return nil
			}

			messages, err := s.List(store.Filter{From: from, Limit: limit})
			if err != nil {
				return err
			}
			if f.IsJSON() {
				if messages == nil {
					messages = []store.Message{}
				}
				return f.JSON(messages)
			}
			if len(messages) == 0 {
				f.Println("No messages logged yet.")
				return nil
			}

			if full {
				width := min(output.TerminalWidth(), 100)
				for _, m := range messages {
					status := f.Styles().StatusStyle(m.Status).Render(m.Status)
					f.Textln("%s  %s  %s", m.CreatedAt.Local().Format("2006-01-02 15:04:05"), m.From, status)
					f.Println(output.Block("> "+m.Body, width, 2))
					f.Println(output.Block(m.Reply, width, 2))
					if m.Error != "" {
						f.Println(output.Block("error: "+m.Error, width, 2))
					}
					f.Line()
				}
				return nil
			}

			table := f.Table("TIME", "FROM", "STATUS", "MESSAGE", "REPLY")
			for _, m := range messages {
				table.AddRow(
					m.CreatedAt.Local().Format("01-02 15:04"),
					m.From,
					m.Status,
					output.Truncate(output.OneLine(m.Body), 30),
					output.Truncate(output.OneLine(m.Reply), 40),
				)
			}
			table.Render()
			f.Line()
			f.Println(f.Styles().Muted.Render(output.CountStr(len(messages), "message", "messages")))
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "only messages from this number")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum messages to show")
	cmd.Flags().BoolVar(&stats, "stats", false, "show totals instead of messages")
	cmd.Flags().BoolVar(&full, "full", false, "show complete message and reply text")
	return cmd
}
