// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrAuthRequired indicates there is no authenticated principal.
	ErrAuthRequired = errors.New("authentication required")

	// ErrMissingPrimaryEmail indicates the identity provider record has no
	// usable primary email; provisioning cannot proceed.
	ErrMissingPrimaryEmail = errors.New("no primary email found for user")

	// ErrExchangeFailed indicates the OAuth code exchange was rejected
	// (code invalid, expired, or provider error). Codes are single-use,
	// so this is never retried internally.
	ErrExchangeFailed = errors.New("token exchange failed")

	// ErrQuotaExceeded indicates the user reached the linked account limit
	// for their subscription tier.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a unique constraint violation.
	ErrAlreadyExists = errors.New("already exists")

	// ErrStoreUnavailable indicates the data store could not serve the
	// request; propagated to the caller, never swallowed.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrSyncInProgress indicates a synchronization is already running for
	// the account; manual triggers are dropped, not queued.
	ErrSyncInProgress = errors.New("sync already in progress")
)
