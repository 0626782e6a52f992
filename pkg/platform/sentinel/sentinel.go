package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores, bus adapters and the
// synchronizer return these (optionally wrapped) so the facade can translate
// them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in store
// - ErrConflict: a concurrent writer already committed an equal or newer revision
// - ErrExpired: restriction or token has expired
// - ErrInvalidState: component in wrong state for requested operation
// - ErrUnavailable: store or bus temporarily unavailable (retryable)
// - ErrClosed: component has been shut down
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrExpired      = errors.New("expired")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
	ErrClosed       = errors.New("closed")
)

// IsRetryable reports whether err describes a transient infrastructure
// failure worth retrying.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
