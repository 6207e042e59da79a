package domain

import "time"

// Credential is the delegated-access grant for one user's mailbox.
// Mutated only by the credential provider; persisted immediately after every
// refresh so a rotated token is never lost when the scan later fails.
type Credential struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"` // zero value means unknown expiry
}

// Expired reports whether the access token is known-stale at now.
// An unset expiry counts as expired: a refresh is attempted rather than
// risking a scan with a token of unknown validity.
func (c Credential) Expired(now time.Time) bool {
	return c.ExpiresAt.IsZero() || !c.ExpiresAt.After(now)
}

// User owns a set of Service references and the scan watermark.
type User struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName,omitempty"`

	Credential Credential `json:"-"`

	// LastScanDate is the watermark for incremental scans. Zero value means
	// "first scan, no filter". Advanced once per run (success or bounded
	// partial), never rolled back.
	LastScanDate time.Time `json:"lastScanDate"`

	// TotalServices must always equal the cardinality of the user's service
	// set. It is adjusted by increments/decrements, never recomputed, so a
	// concurrent unsubscribe cannot be clobbered by a scan.
	TotalServices int64 `json:"totalServices"`

	// UnsubscribedCount counts successful unsubscribe actions.
	UnsubscribedCount int64 `json:"unsubscribedCount"`
}
