package scoring

import "errors"

// Sentinel kinds for scoring errors.
var (
	ErrUnknownScorer = errors.New("unknown scorer")
)
