package broker

import "errors"

var (
	// ErrRunNotFound is returned by Subscribe, Cancel, and GetSnapshot for an
	// unknown runId.
	ErrRunNotFound = errors.New("broker: run not found")

	// ErrIdempotencyConflict is returned by CreateRuntimeRun when a live
	// idempotency key is reused with a differing fingerprint.
	ErrIdempotencyConflict = errors.New("broker: idempotency conflict")
)
