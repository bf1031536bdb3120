package versioning

import "errors"

var (
	// ErrNotFound is returned when no config is registered for a base
	// character.
	ErrNotFound = errors.New("versioning: not found")

	// ErrValidation is returned for malformed version configs and invalid
	// reassignment targets. Wrapped errors carry the detail.
	ErrValidation = errors.New("versioning: invalid configuration")

	// ErrNoManualAssignment is returned by the manual strategy when the
	// user has no entry in the assignments table. Callers fall back to the
	// character's default version rather than failing the request.
	ErrNoManualAssignment = errors.New("versioning: no manual assignment for user")
)
