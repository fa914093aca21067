package twilio

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// ErrMissingField is returned when a required webhook parameter is absent.
var ErrMissingField = errors.New("missing required field")

// InboundMessage is the subset of Twilio's incoming-message webhook we use.
type InboundMessage struct {
	MessageSID string `json:"message_sid,omitempty"`
	AccountSID string `json:"account_sid,omitempty"`
	From       string `json:"from"`
	To         string `json:"to"`
	Body       string `json:"body"`
	NumMedia   int    `json:"num_media,omitempty"`
}

// ParseInbound reads the message from r's form. From, To and Body are required;
// Body may be empty but must be present.
func ParseInbound(r *http.Request) (InboundMessage, error) {
	if err := r.ParseForm(); err != nil {
		return InboundMessage{}, fmt.Errorf("parse form: %w", err)
	}
	form := r.PostForm

	var missing []string
	for _, key := range []string{"From", "To", "Body"} {
		if _, ok := form[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return InboundMessage{}, fmt.Errorf("%w: %s", ErrMissingField, strings.Join(missing, ", "))
	}

	msg := InboundMessage{
		MessageSID: form.Get("MessageSid"),
		AccountSID: form.Get("AccountSid"),
		From:       form.Get("From"),
		To:         form.Get("To"),
		Body:       form.Get("Body"),
	}
	if n, err := strconv.Atoi(form.Get("NumMedia")); err == nil {
		msg.NumMedia = n
	}
	return msg, nil
}
