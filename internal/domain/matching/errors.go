package matching

import (
	"errors"

	"github.com/okian/pairup/internal/domain/pool"
)

// Sentinel kinds for matching errors.
var (
	// ErrPartnerUnavailable is the commit-time race loss: one side left or
	// was matched elsewhere between scoring and commit.
	ErrPartnerUnavailable = pool.ErrPartnerUnavailable
	// ErrSelfMatch is returned when a participant is paired with itself.
	ErrSelfMatch = pool.ErrSelfMatch
	// ErrProfileIncomplete is returned for a profile without participant id.
	ErrProfileIncomplete = pool.ErrProfileIncomplete
	// ErrNotQueued is returned when the requester is not in the pool.
	ErrNotQueued = errors.New("participant not queued")
	// ErrInvalidCohort is returned when cohort labels are empty or identical.
	ErrInvalidCohort = errors.New("invalid cohort pair")
	// ErrInvalidThreshold is returned for a negative auto-match threshold.
	ErrInvalidThreshold = errors.New("auto-match threshold must be non-negative")
)
