package domain

import "errors"

// Error kinds surfaced by engine operations. Callers match with errors.Is.
var (
	ErrValidation = errors.New("validation failed")
	ErrPermission = errors.New("permission denied")
	ErrState      = errors.New("invalid state")
	ErrCapacity   = errors.New("capacity exceeded")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrTransport  = errors.New("transport failure")
)

// Kind returns a short machine-readable label for err.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrPermission):
		return "permission"
	case errors.Is(err, ErrState):
		return "state"
	case errors.Is(err, ErrCapacity):
		return "capacity"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrTransport):
		return "transport"
	default:
		return "internal"
	}
}
