package domain

import "time"

// Service represents the canonical runtime truth of a subscription sender
// discovered in a user's mailbox.
//
// It is NOT tied to Gmail, Redis or any external source.
// All inputs (scan runs, unsubscribe actions) are merged into this structure.
//
// A Service is considered uniquely identified by its EmailID.
type Service struct {
	// ─────────────────────────────
	// Identity (immutable)
	// ─────────────────────────────

	// EmailID is the canonical unique identifier: the normalized
	// (lower-cased, trimmed) sender address.
	// Example: news@retailer.com
	EmailID string `json:"emailId"`

	// Domain is the part of EmailID after '@', empty when the sender
	// header carried no address.
	Domain string `json:"domain,omitempty"`

	// ─────────────────────────────
	// Presentation
	// (overwritten by every scan that sees the sender)
	// ─────────────────────────────

	// Name is the display name from the latest From header,
	// falling back to EmailID.
	Name string `json:"name"`

	// Description is a short human-readable summary.
	Description string `json:"description,omitempty"`

	// IconURL is derived deterministically from Domain; never fetched.
	IconURL string `json:"iconUrl,omitempty"`

	// ─────────────────────────────
	// Observation
	// ─────────────────────────────

	// EmailCount is monotonically non-decreasing: each scan run adds the
	// number of new signals it saw, it is never recomputed from scratch.
	EmailCount int64 `json:"emailCount"`

	// LastEmailSubject and LastEmailDate come from the newest signal
	// ever seen for this sender.
	LastEmailSubject string    `json:"lastEmailSubject,omitempty"`
	LastEmailDate    time.Time `json:"lastEmailDate"`

	// RecentEmails holds at most the five newest signals, newest first.
	RecentEmails []RecentEmail `json:"recentEmails"`

	// ─────────────────────────────
	// Unsubscribe method (sticky: a scan that finds no link
	// never clears a previously known one)
	// ─────────────────────────────

	UnsubscribeURL    string `json:"unsubscribeUrl,omitempty"`
	UnsubscribeMailto string `json:"unsubscribeMailto,omitempty"`
	OneClickSupported bool   `json:"oneClickSupported"`

	// IsUnsubscribed is set only by the unsubscribe action, never by a scan.
	IsUnsubscribed bool `json:"isUnsubscribed"`

	// CreatedAt is the first time the sender was discovered.
	CreatedAt time.Time `json:"createdAt"`

	// UpdatedAt is updated on any mutation.
	UpdatedAt time.Time `json:"updatedAt"`
}

// RecentEmail is a bounded preview entry kept on a Service.
type RecentEmail struct {
	Subject string    `json:"subject"`
	Date    time.Time `json:"date"`
	Snippet string    `json:"snippet,omitempty"`
}

// RecentEmailLimit caps Service.RecentEmails.
const RecentEmailLimit = 5

// ServiceUpdate is the per-sender output of one scan run. NewCount is the
// number of signals seen THIS run, never a grand total: the reconciler adds
// it to the persistent EmailCount so repeated runs only grow the counter.
type ServiceUpdate struct {
	EmailID           string
	Name              string
	Domain            string
	Description       string
	IconURL           string
	LastEmailSubject  string
	LastEmailDate     time.Time
	RecentEmails      []RecentEmail
	UnsubscribeURL    string
	UnsubscribeMailto string
	OneClickSupported bool
	NewCount          int64
}

// ScanResult is returned to the caller of a scan run.
type ScanResult struct {
	Services      []*Service `json:"services"`
	TotalServices int64      `json:"totalServicesCount"`
	// Partial is true when the run stopped on its time budget before
	// exhausting all upstream pages.
	Partial bool `json:"partial"`
}
