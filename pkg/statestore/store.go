// Package statestore persists the browser session-state blob across
// restarts. The blob is produced and consumed by the automation driver;
// this package treats it as opaque bytes at a single well-known location.
package statestore

import "errors"

// ErrNotFound indicates no session state has been saved yet.
var ErrNotFound = errors.New("statestore: no saved session state")

// Store provides durable storage for one opaque session-state blob.
type Store interface {
	// Load returns the saved blob, or ErrNotFound if none exists.
	Load() ([]byte, error)

	// Save replaces the saved blob.
	Save(blob []byte) error

	// Delete removes the saved blob. Deleting absent state is not an error.
	Delete() error
}
