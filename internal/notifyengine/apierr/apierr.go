// Package apierr collects the sentinel errors returned across package
// boundaries so callers can classify failures with errors.Is instead of
// string matching.
package apierr

import "errors"

var (
	// ErrInvalidRequest marks a caller-supplied request that failed validation.
	ErrInvalidRequest = errors.New("notifyengine: invalid request")

	// ErrNotFound marks a lookup that found nothing.
	ErrNotFound = errors.New("notifyengine: not found")

	// ErrConflict marks a write that collided with existing state (e.g.
	// admitting a notification that already exists, activating a template
	// version that was superseded concurrently).
	ErrConflict = errors.New("notifyengine: conflict")

	// ErrUnavailable marks a dependency (store, provider) that is
	// temporarily unable to serve the request.
	ErrUnavailable = errors.New("notifyengine: unavailable")
)
