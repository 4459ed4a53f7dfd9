package loadtest

import "time"

// HTTP status code constants.
const (
	StatusOK = 200
)

// Defaults applied to zero config values.
const (
	DefaultParticipants = 200
	DefaultPerProfile   = 2
	DefaultTimeout      = 10 * time.Second
	DefaultSettle       = 3 * time.Second
)

// DefaultSkills and DefaultSlots seed generated profiles.
var (
	DefaultSkills = []string{"cooking", "baking", "go", "rust", "guitar", "chess", "spanish", "drawing"}
	DefaultSlots  = []string{"mornings", "evenings", "weekends", "lunch"}
)

const noticeBusy = "Server busy, try again"
