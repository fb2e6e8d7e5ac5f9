package forest

import "errors"

// Sentinel error kinds for this package.
var (
	ErrEmptyFrame        = errors.New("empty frame")
	ErrInvalidParameters = errors.New("invalid forest parameters")
	ErrDimensionMismatch = errors.New("dimension mismatch")
)
