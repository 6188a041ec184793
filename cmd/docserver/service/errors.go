package service

import "errors"

// Error taxonomy shared across services. Handlers translate these to
// HTTP status codes; everything else surfaces as a 500.
var (
	// ErrNotFound covers missing nodes, blobs and jobs
	ErrNotFound = errors.New("not found")

	// ErrForbidden is raised when the rights predicate denies access
	ErrForbidden = errors.New("forbidden")

	// ErrConflict signals a duplicate name under the same parent
	ErrConflict = errors.New("name already in use")

	// ErrUpstream wraps external transcoder/converter failures
	ErrUpstream = errors.New("upstream failure")

	// ErrNoContent is returned when a container is asked for raw bytes
	ErrNoContent = errors.New("node has no raw content")
)
