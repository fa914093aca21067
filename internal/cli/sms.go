package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jimshare/bae-ai/internal/config"
	"github.com/jimshare/bae-ai/internal/prompt"
	"github.com/jimshare/bae-ai/internal/twilio"
)

func twilioClient(c *config.Config) *twilio.Client {
	client := twilio.NewClient(c.Twilio.AccountSID, c.Twilio.AuthToken)
	if c.Twilio.APIBaseURL != "" {
		client.BaseURL = c.Twilio.APIBaseURL
	}
	return client
}

func newSMSCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sms",
		Short: "Send SMS through the Twilio REST API",
	}
	cmd.AddCommand(newSMSSendCmd())
	return cmd
}

func newSMSSendCmd() *cobra.Command {
	var (
		to   string
		from string
	)

	cmd := &cobra.Command{
		Use:   "send --to <number> <message>",
		Short: "Send one SMS",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if to == "" {
				return fmt.Errorf("--to is required")
			}
			sender := from
			if sender == "" {
				sender = cfg.Twilio.PhoneNumber
			}
			if sender == "" {
				return fmt.Errorf("no sender: set TWILIO_PHONE_NUMBER or pass --from")
			}
			body := strings.Join(args, " ")

			msg, err := twilioClient(cfg).SendMessage(cmd.Context(), sender, to, body)
			if err != nil {
				return err
			}

			f := formatter(cmd)
			if f.IsJSON() {
				return f.JSON(msg)
			}
			segments, encoding := prompt.Segments(body)
			f.Success("Sent %s to %s (%d %s segment(s), status %s)", msg.SID, msg.To, segments, encoding, msg.Status)
			return nil
		},
	}

	cmd.Flags().StringVar(&to, "to", "", "recipient number in E.164 form")
	cmd.Flags().StringVar(&from, "from", "", "sender number (default from config: twilio.phone_number)")
	return cmd
}
