package scan

import (
	"regexp"
	"strings"

	"github.com/trimbox/trimbox/internal/domain"
	gc "github.com/trimbox/trimbox/internal/gmail"
)

// Defaults applied when a message is missing its From/Subject headers.
// Malformed headers degrade to these, never abort a run.
const (
	unknownSender = "Unknown Sender"
	noSubject     = "No Subject"
)

// oneClickValue is the List-Unsubscribe-Post value (compared
// case-insensitively) that signals RFC 8058 one-click support.
const oneClickValue = "list-unsubscribe=one-click"

var (
	httpLinkRe   = regexp.MustCompile(`<(https?://[^>]+)>`)
	mailtoLinkRe = regexp.MustCompile(`<(mailto:[^>]+)>`)
)

// Extract parses a raw message's headers into an unsubscribe signal.
// It is a pure function: no I/O, no errors. The second return value is false
// when the message carries neither an unsubscribe URL nor a mailto target,
// in which case the message is dropped before aggregation.
func Extract(msg gc.Message) (domain.UnsubscribeSignal, bool) {
	sig := domain.UnsubscribeSignal{
		MessageID:    string(msg.ID),
		ThreadID:     msg.ThreadID,
		SenderHeader: unknownSender,
		Subject:      noSubject,
		InternalDate: msg.InternalDate,
		Snippet:      msg.Snippet,
	}

	if from := msg.Header("From"); from != "" {
		sig.SenderHeader = from
	}
	if subject := msg.Header("Subject"); subject != "" {
		sig.Subject = subject
	}

	if raw := msg.Header("List-Unsubscribe"); raw != "" {
		if m := httpLinkRe.FindStringSubmatch(raw); m != nil {
			sig.UnsubscribeURL = m[1]
		}
		if m := mailtoLinkRe.FindStringSubmatch(raw); m != nil {
			sig.UnsubscribeMailto = m[1]
		}
	}
	if post := msg.Header("List-Unsubscribe-Post"); post != "" {
		sig.OneClickSupported = strings.EqualFold(strings.TrimSpace(post), oneClickValue)
	}

	if !sig.Actionable() {
		return domain.UnsubscribeSignal{}, false
	}
	return sig, true
}
