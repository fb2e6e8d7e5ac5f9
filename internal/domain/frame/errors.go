package frame

import "errors"

// Sentinel error kinds for this package.
var (
	ErrNilBatch         = errors.New("nil batch")
	ErrUnsupportedValue = errors.New("unsupported value")
)
