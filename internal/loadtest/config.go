// Package loadtest drives a running matchmaker over WebSocket and checks
// that no participant is ever matched twice.
package loadtest

import (
	"time"

	"github.com/okian/pairup/internal/adapters/notify"
)

// Config holds configuration for a load run.
type Config struct {
	BaseURL      string        // Base URL of the service (http or https)
	Participants int           // Number of simulated participants
	Skills       []string      // Pool skills are drawn from
	Slots        []string      // Pool availability slots are drawn from
	PerProfile   int           // Skills and slots per participant
	Workers      int           // Concurrent connection setups
	Timeout      time.Duration // Dial and HTTP timeout
	Settle       time.Duration // Time to wait for matches after the last join
	OutputFile   string        // Report file, empty for none
	Verbose      bool          // Log every notice
}

// Stats holds run statistics.
type Stats struct {
	Connected    int
	JoinsSent    int
	JoinsFailed  int
	Matched      int
	Notices      int
	Busy         int
	ServerBefore int
	ServerAfter  int
	StartTime    time.Time
	EndTime      time.Time
	Duration     time.Duration
}

// Result is what one simulated participant observed.
type Result struct {
	ParticipantID string
	Sessions      []notify.SessionView
	Notices       []string
	Updates       int
}

// Report is the verification summary written at the end of a run.
type Report struct {
	Participants   int      `json:"participants"`
	Matched        int      `json:"matched"`
	Unmatched      int      `json:"unmatched"`
	Sessions       int      `json:"sessions"`
	ServerSessions int      `json:"serverSessions"`
	DoubleMatched  []string `json:"doubleMatched,omitempty"`
	Inconsistent   []string `json:"inconsistent,omitempty"`
	Duration       string   `json:"duration"`
}
