package ws

import "errors"

// Sentinel kinds for inbound frame errors.
var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrUnknownKind    = errors.New("unknown message type")
	ErrBadPayload     = errors.New("bad payload")
)

// ErrMissingID marks a profile frame without a participant id. Such frames
// are dropped without a reply.
var ErrMissingID = errors.New("missing participant id")
