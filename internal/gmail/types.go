package gmail

import "strings"

// MessageID identifies one message within the mailbox.
type MessageID string

// Header is one raw message header as returned by the mail API.
type Header struct {
	Name  string
	Value string
}

// Message is the raw record produced by a detail fetch. Headers keep their
// original casing; lookups must be case-insensitive by name.
type Message struct {
	ID           MessageID
	ThreadID     string
	InternalDate int64 // epoch millis
	Snippet      string
	Headers      []Header
}

// Header returns the value of the first header matching name
// (case-insensitive), or "" when absent.
func (m Message) Header(name string) string {
	for _, h := range m.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// ListPage is one page of a paginated listing. NextPageToken is opaque;
// empty means the listing is exhausted.
type ListPage struct {
	IDs           []MessageID
	NextPageToken string
}

// Query is a mailbox query string, already formed
// (e.g. `in:inbox unsubscribe after:1726440000`).
type Query struct {
	Raw string
}
