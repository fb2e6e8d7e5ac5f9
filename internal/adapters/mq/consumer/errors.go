package consumer

import "errors"

// Sentinel error kinds for this package.
var (
	ErrChannelClosed = errors.New("deliveries channel closed")
	ErrSetup         = errors.New("consumer setup failed")
)
