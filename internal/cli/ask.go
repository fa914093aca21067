package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jimshare/bae-ai/internal/output"
	"github.com/jimshare/bae-ai/internal/twilio"
)

func newAskCmd() *cobra.Command {
	var (
		from   string
		record bool
	)

	cmd := &cobra.Command{
		Use:   "ask <message>",
		Short: "Run one message through the reply pipeline locally",
		Long: `Sends a message through the same pipeline the webhook uses (context file,
prompt, LLM, SMS fitting) and prints the reply with its SMS segment count.
Nothing is sent to a phone.

Examples:
  bae ask "What documents do I need to apply?"
  bae ask --json "Am I eligible?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			comps, err := buildComponents(cmd.Context(), cfg, record)
			if err != nil {
				return err
			}
			defer comps.Close()

			reply, err := comps.chat.Reply(cmd.Context(), twilio.InboundMessage{
				From: from,
				To:   cfg.Twilio.PhoneNumber,
				Body: strings.Join(args, " "),
			})

			f := formatter(cmd)
			if f.IsJSON() {
				payload := map[string]interface{}{"reply": reply}
				if err != nil {
					payload["error"] = err.Error()
				}
				if encErr := f.JSON(payload); encErr != nil {
					return encErr
				}
				return err
			}
			if err != nil {
				return fmt.Errorf("no reply: %w", err)
			}

			f.Println(output.Wrap(reply.Text, min(output.TerminalWidth(), 100)))
			f.Line()
			f.Println(f.Styles().Muted.Render(fmt.Sprintf("%d chars · %s · %s · %s via %s",
				len([]rune(reply.Text)),
				output.CountStr(reply.Segments, "segment", "segments"),
				reply.Encoding,
				reply.Latency.Round(time.Millisecond),
				comps.chat.ProviderName(),
			)))
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "cli", "sender key used for rate limiting and the message log")
	cmd.Flags().BoolVar(&record, "record", false, "write the exchange to the message log")
	return cmd
}
