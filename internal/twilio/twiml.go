package twilio

import (
	"encoding/xml"
	"io"
)

// ContentTypeXML is the content type for TwiML documents.
const ContentTypeXML = "application/xml"

// MessagingResponse is a TwiML <Response> holding zero or more <Message> verbs.
type MessagingResponse struct {
	XMLName  xml.Name       `xml:"Response"`
	Messages []TwiMLMessage `xml:"Message"`
}

// TwiMLMessage is a <Message> verb. To and From are optional overrides.
type TwiMLMessage struct {
	To   string `xml:"to,attr,omitempty"`
	From string `xml:"from,attr,omitempty"`
	Body string `xml:",chardata"`
}

// Message appends a reply.
func (r *MessagingResponse) Message(body string) *MessagingResponse {
	r.Messages = append(r.Messages, TwiMLMessage{Body: body})
	return r
}

// WriteTo writes the XML document to w.
func (r *MessagingResponse) WriteTo(w io.Writer) (int64, error) {
	data, err := xml.Marshal(r)
	if err != nil {
		return 0, err
	}
	n, err := io.WriteString(w, xml.Header+string(data))
	return int64(n), err
}

// String renders the document, ignoring marshal errors (none are possible for this type).
func (r *MessagingResponse) String() string {
	data, _ := xml.Marshal(r)
	return xml.Header + string(data)
}
