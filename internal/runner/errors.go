package runner

import "errors"

// Sentinel error kinds for this package.
var (
	ErrNoJobs     = errors.New("no jobs to run")
	ErrReadJobs   = errors.New("read job file")
	ErrUnitFailed = errors.New("job unit failed")

	ErrRunIncomplete = errors.New("run ended before unit finished")
)
