package detect

import "errors"

// Sentinel error kinds for this package.
var (
	ErrDetectionFailure = errors.New("detection failed")
	ErrUnknownStrategy  = errors.New("unknown strategy")
)
