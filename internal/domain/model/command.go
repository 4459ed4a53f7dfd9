package model

import "time"

// CommandKind names an inbound command.
type CommandKind string

// Inbound command kinds. The string values are the wire names.
const (
	CommandJoin        CommandKind = "joinQueue"
	CommandUpdate      CommandKind = "updateProfile"
	CommandLeave       CommandKind = "leaveQueue"
	CommandManualMatch CommandKind = "requestManualMatch"
	CommandAccept      CommandKind = "acceptMatch"
	CommandDisconnect  CommandKind = "disconnect"
)

// Command is one inbound request from a connected participant.
type Command struct {
	Kind      CommandKind
	RequestID string
	// ConnectionHandle identifies the sender's connection.
	ConnectionHandle string
	// ParticipantID is the subject of the command. For acceptMatch it is the acceptor.
	ParticipantID string
	// Profile is set for join and update.
	Profile ProfileSnapshot
	// InviterID is set for acceptMatch.
	InviterID  string
	ReceivedAt time.Time
}

// PartitionKey returns the key commands are ordered by.
func (c Command) PartitionKey() string {
	if c.ParticipantID != "" {
		return c.ParticipantID
	}
	return c.ConnectionHandle
}
