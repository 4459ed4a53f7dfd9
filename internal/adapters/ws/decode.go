package ws

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/okian/pairup/internal/adapters/notify"
	"github.com/okian/pairup/internal/domain/model"
)

type acceptPayload struct {
	InviterID  string `json:"inviterId"`
	AcceptorID string `json:"acceptorId"`
}

// Decode turns one inbound frame into a command for the connection handle.
func Decode(handle string, frame []byte, now time.Time) (model.Command, error) {
	var env notify.Envelope[json.RawMessage]
	if err := json.Unmarshal(frame, &env); err != nil {
		return model.Command{}, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}

	cmd := model.Command{
		Kind:             model.CommandKind(env.Type),
		RequestID:        strings.TrimSpace(env.RequestID),
		ConnectionHandle: handle,
		ReceivedAt:       now,
	}

	switch cmd.Kind {
	case model.CommandJoin, model.CommandUpdate:
		var v notify.ProfileView
		if err := json.Unmarshal(env.Payload, &v); err != nil {
			return model.Command{}, fmt.Errorf("%w: %s: %w", ErrBadPayload, env.Type, err)
		}
		cmd.Profile = v.Snapshot()
		cmd.ParticipantID = cmd.Profile.ParticipantID
		if cmd.ParticipantID == "" {
			return model.Command{}, fmt.Errorf("%w: %s", ErrMissingID, env.Type)
		}
	case model.CommandLeave, model.CommandManualMatch:
		var id string
		if err := json.Unmarshal(env.Payload, &id); err != nil {
			return model.Command{}, fmt.Errorf("%w: %s: %w", ErrBadPayload, env.Type, err)
		}
		cmd.ParticipantID = strings.TrimSpace(id)
	case model.CommandAccept:
		var p acceptPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return model.Command{}, fmt.Errorf("%w: %s: %w", ErrBadPayload, env.Type, err)
		}
		cmd.InviterID = strings.TrimSpace(p.InviterID)
		cmd.ParticipantID = strings.TrimSpace(p.AcceptorID)
		if cmd.InviterID == "" {
			return model.Command{}, fmt.Errorf("%w: %s: missing inviterId", ErrBadPayload, env.Type)
		}
	default:
		return model.Command{}, fmt.Errorf("%w: %q", ErrUnknownKind, env.Type)
	}

	if cmd.ParticipantID == "" {
		return model.Command{}, fmt.Errorf("%w: %s: missing participant id", ErrBadPayload, env.Type)
	}
	return cmd, nil
}
