package store

import "encoding/json"

// A LinkType names the kind of external entity a message can reference.
type LinkType string

const (
	LinkReservation LinkType = "reservation"
	LinkOffer       LinkType = "offer"
	LinkQuotation   LinkType = "quotation"
)

// Valid reports whether t is one of the known link types.
func (t LinkType) Valid() bool {
	switch t {
	case LinkReservation, LinkOffer, LinkQuotation:
		return true
	}
	return false
}

// A Link references an external entity from a message body.
type Link struct {
	Type LinkType `json:"type"`
	ID   string   `json:"id"`
}

// Content is the decoded form of a message body: plain text, or text with an
// attached link. Link is nil for plain content.
type Content struct {
	Text string
	Link *Link
}

// envelope is the wire form of linked content.
type envelope struct {
	Text string `json:"text"`
	Link *Link  `json:"link,omitempty"`
}

// EncodeContent returns the wire form of c. Plain content stays a raw string;
// linked content is serialized as a {text, link} JSON envelope.
func EncodeContent(c Content) string {
	if c.Link == nil {
		return c.Text
	}
	b, err := json.Marshal(envelope{Text: c.Text, Link: c.Link})
	if err != nil {
		// Marshalling a two-field struct of strings cannot fail; keep the
		// text readable if it somehow does.
		return c.Text
	}
	return string(b)
}

// DecodeContent parses a stored message body. A body that is not a valid
// {text, ...} envelope is returned verbatim as plain content rather than an
// error, so malformed or pre-envelope records still display.
func DecodeContent(raw string) Content {
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil || env.Text == "" {
		return Content{Text: raw}
	}
	return Content{Text: env.Text, Link: env.Link}
}
