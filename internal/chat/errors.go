package chat

import "errors"

// Error kinds surfaced by the core. The HTTP layer maps these to status
// codes; storage and bus failures propagate as-is and roll back the scope.
var (
	ErrNotFound   = errors.New("not found")
	ErrForbidden  = errors.New("forbidden")
	ErrConflict   = errors.New("conflict")
	ErrValidation = errors.New("validation failed")
)
