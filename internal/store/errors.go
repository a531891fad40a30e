package store

import "errors"

// Sentinel errors surfaced by the store service. Handlers branch on
// these with errors.Is to pick status codes.
var (
	// ErrNotFound is the normal "nothing matched" outcome for reads,
	// updates and deletes. It is not logged as a failure.
	ErrNotFound = errors.New("store: no documents matched")

	// ErrConflict signals identifier collision after retry exhaustion
	// or a uniqueness violation on insert.
	ErrConflict = errors.New("store: duplicate identifier")

	// ErrInvalidQuery / ErrInvalidUpdate / ErrInvalidPipeline reject
	// input before it reaches the datastore.
	ErrInvalidQuery    = errors.New("store: query rejected")
	ErrInvalidUpdate   = errors.New("store: update document rejected")
	ErrInvalidPipeline = errors.New("store: aggregation pipeline rejected")

	// ErrUnavailable wraps timeouts and connection failures; callers
	// may retry.
	ErrUnavailable = errors.New("store: datastore unavailable")
)
