package config

import "errors"

// Errors returned by Load. ErrLoadConfig wraps a file, env or decode failure;
// ErrInvalidConfig reports a setting that decoded but is out of range.
var (
	ErrLoadConfig    = errors.New("load rad config")
	ErrInvalidConfig = errors.New("invalid rad config")
)
