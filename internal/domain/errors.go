package domain

import "errors"

var (
	// ErrReauthRequired means the delegated credential is irrecoverably
	// invalid (revoked grant, failed refresh). Surfaced to the user;
	// never retried automatically.
	ErrReauthRequired = errors.New("mail authorization expired, re-authentication required")

	// ErrUpstream marks a failed mail-API list call. Partial results
	// gathered before the failure are still reconciled.
	ErrUpstream = errors.New("mail API upstream failure")

	// ErrScanInProgress is returned when a scan is requested for a user
	// whose previous scan has not finished.
	ErrScanInProgress = errors.New("a scan is already running for this user")

	// ErrServiceNotFound is returned for an unknown service id.
	ErrServiceNotFound = errors.New("service not found")

	// ErrNotOwned is returned when a service does not belong to the
	// requesting user.
	ErrNotOwned = errors.New("service does not belong to this user")

	// ErrNoUnsubscribeMethod means the service carries neither an
	// unsubscribe URL nor a mailto target.
	ErrNoUnsubscribeMethod = errors.New("no valid unsubscribe method for this service")

	// ErrUserNotFound is returned for an unknown user or session.
	ErrUserNotFound = errors.New("user not found")
)
