package pool

import "errors"

// Sentinel kinds for pool errors.
var (
	// ErrPartnerUnavailable is returned when one side of a pair left the
	// pool or was matched elsewhere before the removal could happen.
	ErrPartnerUnavailable = errors.New("partner no longer available")
	// ErrSelfMatch is returned when both sides of a pair are the same participant.
	ErrSelfMatch = errors.New("cannot pair a participant with itself")
	// ErrProfileIncomplete is returned for entries without a participant id.
	ErrProfileIncomplete = errors.New("profile incomplete")
)
