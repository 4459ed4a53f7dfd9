// Package notify delivers outbound messages to connected participants.
//
// The hub is the only place that maps participant ids to live connections.
// Delivery never blocks: a message for an offline participant or a full
// connection buffer is dropped and counted.
package notify

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/okian/pairup/internal/domain/model"
	"github.com/okian/pairup/pkg/logger"
	"github.com/okian/pairup/pkg/metrics"
)

const defaultSendBuffer = 64

// Option applies a configuration option to the Hub.
type Option func(*Hub)

// WithSendBuffer sets the per-connection outbound buffer size.
func WithSendBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.sendBuffer = n
		}
	}
}

// WithLogger sets a custom logger for the hub.
func WithLogger(l logger.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

// Conn is the hub side of one client connection.
type Conn struct {
	handle string
	send   chan []byte
	done   chan struct{}
}

// Handle returns the opaque connection handle.
func (c *Conn) Handle() string { return c.handle }

// Send yields encoded frames to write to the client.
func (c *Conn) Send() <-chan []byte { return c.send }

// Done is closed when the connection is unregistered.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Hub tracks connections and participant bindings.
type Hub struct {
	mu       sync.RWMutex
	conns    map[string]*Conn
	bindings map[string]string              // participant -> handle
	bound    map[string]map[string]struct{} // handle -> participants

	sendBuffer int
	logger     logger.Logger
}

// NewHub creates an empty hub.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		conns:      make(map[string]*Conn),
		bindings:   make(map[string]string),
		bound:      make(map[string]map[string]struct{}),
		sendBuffer: defaultSendBuffer,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = logger.Get().Named("notifier")
	}
	return h
}

// Register allocates a connection with a fresh handle.
func (h *Hub) Register(ctx context.Context) *Conn {
	c := &Conn{
		handle: "conn_" + uuid.NewString(),
		send:   make(chan []byte, h.sendBuffer),
		done:   make(chan struct{}),
	}
	h.mu.Lock()
	h.conns[c.handle] = c
	n := len(h.conns)
	h.mu.Unlock()

	metrics.UpdateConnectedClients(n)
	h.logger.Debug(ctx, "connection registered", logger.String("conn", c.handle))
	return c
}

// Unregister removes the connection and returns the participants that were
// bound to it. Bindings that moved to a newer connection are kept.
func (h *Hub) Unregister(ctx context.Context, handle string) []string {
	h.mu.Lock()
	c, ok := h.conns[handle]
	if !ok {
		h.mu.Unlock()
		return nil
	}
	delete(h.conns, handle)
	close(c.done)

	var participants []string
	for id := range h.bound[handle] {
		if h.bindings[id] == handle {
			delete(h.bindings, id)
			participants = append(participants, id)
		}
	}
	delete(h.bound, handle)
	n := len(h.conns)
	h.mu.Unlock()

	metrics.UpdateConnectedClients(n)
	h.logger.Debug(ctx, "connection unregistered",
		logger.String("conn", handle),
		logger.Int("participants", len(participants)),
	)
	return participants
}

// Bind routes messages for participantID to the connection handle. A later
// bind replaces an earlier one.
func (h *Hub) Bind(participantID, handle string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[handle]; !ok {
		return false
	}
	if prev, ok := h.bindings[participantID]; ok && prev != handle {
		delete(h.bound[prev], participantID)
	}
	h.bindings[participantID] = handle
	if h.bound[handle] == nil {
		h.bound[handle] = make(map[string]struct{})
	}
	h.bound[handle][participantID] = struct{}{}
	return true
}

// Connected returns the number of registered connections.
func (h *Hub) Connected() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// PushMatchList delivers a ranked candidate list.
func (h *Hub) PushMatchList(ctx context.Context, participantID string, cands []model.MatchCandidate) {
	h.deliver(ctx, participantID, Envelope[[]CandidateView]{
		Type:    string(KindMatchUpdate),
		Payload: NewCandidateViews(cands),
	})
}

// PushMatched delivers a committed session.
func (h *Hub) PushMatched(ctx context.Context, participantID string, s model.Session) {
	h.deliver(ctx, participantID, Envelope[SessionView]{
		Type:    string(KindMatched),
		Payload: NewSessionView(s),
	})
}

// PushNotice delivers a free-text notice.
func (h *Hub) PushNotice(ctx context.Context, participantID, text string) {
	h.deliver(ctx, participantID, Envelope[string]{
		Type:    string(KindNotification),
		Payload: text,
	})
}

// NoticeConn delivers a notice straight to a connection. Used before a
// participant is bound.
func (h *Hub) NoticeConn(ctx context.Context, handle, text string) {
	h.mu.RLock()
	c := h.conns[handle]
	h.mu.RUnlock()
	h.write(ctx, c, handle, string(KindNotification), Envelope[string]{Type: string(KindNotification), Payload: text})
}

type typed interface{ kind() string }

func (e Envelope[T]) kind() string { return e.Type }

func (h *Hub) deliver(ctx context.Context, participantID string, msg typed) {
	h.mu.RLock()
	c := h.conns[h.bindings[participantID]]
	h.mu.RUnlock()
	h.write(ctx, c, participantID, msg.kind(), msg)
}

func (h *Hub) write(ctx context.Context, c *Conn, target, kind string, msg any) {
	if c == nil {
		metrics.RecordNotificationDropped("offline")
		h.logger.Debug(ctx, "dropping message for offline participant",
			logger.String("target", target),
			logger.String("kind", kind),
		)
		return
	}

	b, err := json.Marshal(msg)
	if err != nil {
		metrics.RecordNotificationDropped("encode")
		h.logger.Error(ctx, "failed to encode message", logger.String("kind", kind), logger.Error(err))
		return
	}

	select {
	case <-c.done:
		metrics.RecordNotificationDropped("closed")
	case c.send <- b:
		metrics.RecordNotificationSent(kind)
	default:
		metrics.RecordNotificationDropped("buffer_full")
		h.logger.Warn(ctx, "connection buffer full, dropping message",
			logger.String("conn", c.handle),
			logger.String("kind", kind),
		)
	}
}
