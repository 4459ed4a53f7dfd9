package loadtest

import "errors"

// Sentinel kinds for load run failures.
var (
	ErrUnhealthy    = errors.New("service unhealthy")
	ErrDoubleMatch  = errors.New("participant matched more than once")
	ErrInconsistent = errors.New("session seen by only one side")
)
