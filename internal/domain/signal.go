package domain

import "strings"

// UnsubscribeSignal is the ephemeral record extracted from one qualifying
// message. A message with neither URL nor mailto never becomes a signal.
type UnsubscribeSignal struct {
	MessageID         string
	ThreadID          string
	SenderHeader      string // raw From header
	Subject           string
	UnsubscribeURL    string
	UnsubscribeMailto string
	OneClickSupported bool
	InternalDate      int64 // epoch millis
	Snippet           string
}

// Actionable reports whether the signal carries at least one unsubscribe
// method and therefore may reach aggregation.
func (s UnsubscribeSignal) Actionable() bool {
	return s.UnsubscribeURL != "" || s.UnsubscribeMailto != ""
}

// SenderIdentity normalizes a raw From header into the aggregation/join key:
// the address inside angle brackets when present, otherwise the whole header,
// lower-cased and trimmed. "Foo <a@B.com>", "a@b.com" and " A@B.COM " all
// map to "a@b.com".
func SenderIdentity(fromHeader string) string {
	addr := fromHeader
	if open := strings.Index(fromHeader, "<"); open >= 0 {
		if close := strings.Index(fromHeader[open:], ">"); close > 0 {
			addr = fromHeader[open+1 : open+close]
		}
	}
	return strings.ToLower(strings.TrimSpace(addr))
}

// SenderName extracts the display name from a raw From header: the text
// before '<', trimmed of whitespace and quotes, falling back to fallback.
func SenderName(fromHeader, fallback string) string {
	if idx := strings.Index(fromHeader, "<"); idx > 0 {
		name := strings.TrimSpace(fromHeader[:idx])
		name = strings.Trim(name, `"'`)
		if name != "" {
			return name
		}
	}
	return fallback
}

// SenderDomain returns the part of a normalized identity after '@',
// or "" when the identity carries no address part.
func SenderDomain(identity string) string {
	if at := strings.LastIndexByte(identity, '@'); at >= 0 && at < len(identity)-1 {
		return identity[at+1:]
	}
	return ""
}
