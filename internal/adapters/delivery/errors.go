package delivery

import "errors"

// Sentinel error kinds for this package.
var (
	ErrDeliveryExhausted = errors.New("delivery attempts exhausted")
	ErrEncodePayload     = errors.New("encode payload")
)
