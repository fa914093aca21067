package cli

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jimshare/bae-ai/internal/twilio"
)

func newSignCmd() *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "sign <url> [key=value...]",
		Short: "Compute the X-Twilio-Signature for a webhook request",
		Long: `Computes the signature Twilio would send for a POST to <url> with the
given form parameters, so the webhook can be exercised with curl.

Example:
  sig=$(bae sign https://abc.ngrok.io/sms From=+15550001111 To=+15550009999 Body=hi)
  curl -H "X-Twilio-Signature: $sig" -d From=+15550001111 -d To=+15550009999 \
       -d Body=hi https://abc.ngrok.io/sms`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			authToken := token
			if authToken == "" {
				authToken = cfg.Twilio.AuthToken
			}
			if authToken == "" {
				return fmt.Errorf("no auth token: set TWILIO_AUTH_TOKEN or pass --token")
			}

			params, err := parseParams(args[1:])
			if err != nil {
				return err
			}
			signature := twilio.NewRequestValidator(authToken).ComputeSignature(args[0], params)

			f := formatter(cmd)
			if f.IsJSON() {
				return f.JSON(map[string]interface{}{
					"url":       args[0],
					"params":    params,
					"signature": signature,
				})
			}
			f.Println(signature)
			return nil
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "Twilio auth token (default from config)")
	return cmd
}

func parseParams(pairs []string) (url.Values, error) {
	params := url.Values{}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter %q (want key=value)", pair)
		}
		params.Add(key, value)
	}
	return params, nil
}
