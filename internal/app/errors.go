package service

import "errors"

// Sentinel error kinds for job units and the service.
var (
	ErrMalformedJob      = errors.New("malformed job")
	ErrEmptyJob          = errors.New("job has no data")
	ErrPreparationFailed = errors.New("data preparation failed")
	ErrNotStarted        = errors.New("service not started")
)
