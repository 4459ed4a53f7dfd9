// Package ws is the WebSocket transport. It turns inbound frames into queued
// commands and writes hub output back to the client.
package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/okian/pairup/internal/adapters/mq/queue"
	"github.com/okian/pairup/internal/adapters/notify"
	"github.com/okian/pairup/internal/domain/dedupe"
	"github.com/okian/pairup/internal/domain/model"
	"github.com/okian/pairup/pkg/logger"
	"github.com/okian/pairup/pkg/metrics"
)

// Notices sent straight to a connection.
const (
	NoticeBusy    = "Server busy, try again"
	NoticeInvalid = "Invalid message"
)

const (
	defaultReadLimit = 64 << 10
	defaultPongWait  = 60 * time.Second
	defaultWriteWait = 10 * time.Second
)

// Enqueuer accepts commands for asynchronous handling.
type Enqueuer interface {
	Enqueue(ctx context.Context, c model.Command) error
}

// Handler upgrades HTTP requests and serves one client per connection.
type Handler struct {
	hub      *notify.Hub
	queue    Enqueuer
	dedupe   dedupe.Deduper
	upgrader websocket.Upgrader
	logger   logger.Logger
	now      func() time.Time

	readLimit int64
	pongWait  time.Duration
	writeWait time.Duration
}

// Option configures a Handler.
type Option func(*Handler)

// WithDeduper drops repeated request ids.
func WithDeduper(d dedupe.Deduper) Option {
	return func(h *Handler) { h.dedupe = d }
}

// WithReadLimit caps the size of one inbound frame.
func WithReadLimit(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.readLimit = n
		}
	}
}

// WithPongWait sets how long a silent client is kept. Pings go out at 9/10 of it.
func WithPongWait(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.pongWait = d
		}
	}
}

// WithCheckOrigin overrides the upgrader origin check. The default accepts any origin.
func WithCheckOrigin(fn func(r *http.Request) bool) Option {
	return func(h *Handler) { h.upgrader.CheckOrigin = fn }
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithClock sets the time source stamped on commands.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHandler creates a WebSocket handler feeding q and reading from hub.
func NewHandler(hub *notify.Hub, q Enqueuer, opts ...Option) *Handler {
	h := &Handler{
		hub:   hub,
		queue: q,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		now:       time.Now,
		readLimit: defaultReadLimit,
		pongWait:  defaultPongWait,
		writeWait: defaultWriteWait,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.dedupe == nil {
		h.dedupe = dedupe.NewInMemoryDeduper()
	}
	if h.logger == nil {
		h.logger = logger.Get().Named("ws")
	}
	return h
}

// ServeHTTP handles GET /ws.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sock, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn(r.Context(), "websocket upgrade failed", logger.Error(err))
		metrics.RecordErrorByComponent("ws", "upgrade")
		return
	}

	// The request context ends when the handler returns; the commands queued
	// below outlive it.
	ctx := context.WithoutCancel(r.Context())
	conn := h.hub.Register(ctx)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writeLoop(ctx, sock, conn)
	}()

	h.readLoop(ctx, sock, conn)

	participants := h.hub.Unregister(ctx, conn.Handle())
	<-writerDone
	_ = sock.Close()

	for _, id := range participants {
		cmd := model.Command{
			Kind:             model.CommandDisconnect,
			ConnectionHandle: conn.Handle(),
			ParticipantID:    id,
			ReceivedAt:       h.now(),
		}
		if err := h.queue.Enqueue(ctx, cmd); err != nil {
			h.logger.Warn(ctx, "dropping disconnect",
				logger.String("participant", id),
				logger.Error(err),
			)
		}
	}
}

func (h *Handler) readLoop(ctx context.Context, sock *websocket.Conn, conn *notify.Conn) {
	sock.SetReadLimit(h.readLimit)
	_ = sock.SetReadDeadline(time.Now().Add(h.pongWait))
	sock.SetPongHandler(func(string) error {
		return sock.SetReadDeadline(time.Now().Add(h.pongWait))
	})

	for {
		_, frame, err := sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug(ctx, "connection closed unexpectedly",
					logger.String("conn", conn.Handle()),
					logger.Error(err),
				)
			}
			return
		}
		h.dispatch(ctx, conn.Handle(), frame)
	}
}

func (h *Handler) dispatch(ctx context.Context, handle string, frame []byte) {
	cmd, err := Decode(handle, frame, h.now())
	if errors.Is(err, ErrMissingID) {
		metrics.RecordErrorByComponent("ws", "missing_id")
		h.logger.Debug(ctx, "ignoring profile without id", logger.String("conn", handle))
		return
	}
	if err != nil {
		metrics.RecordErrorByComponent("ws", "decode")
		h.logger.Debug(ctx, "rejecting frame", logger.String("conn", handle), logger.Error(err))
		h.hub.NoticeConn(ctx, handle, NoticeInvalid+": "+err.Error())
		return
	}
	metrics.RecordCommandReceived(string(cmd.Kind))

	var key string
	if cmd.RequestID != "" {
		key = cmd.PartitionKey() + "/" + cmd.RequestID
		if h.dedupe.SeenAndRecord(ctx, key) {
			metrics.RecordCommandDuplicate()
			return
		}
	}

	if err := h.queue.Enqueue(ctx, cmd); err != nil {
		if key != "" {
			h.dedupe.Unrecord(ctx, key)
		}
		if !errors.Is(err, queue.ErrQueueFull) {
			h.logger.Warn(ctx, "failed to queue command",
				logger.String("kind", string(cmd.Kind)),
				logger.String("participant", cmd.ParticipantID),
				logger.Error(err),
			)
		}
		h.hub.NoticeConn(ctx, handle, NoticeBusy)
	}
}

func (h *Handler) writeLoop(ctx context.Context, sock *websocket.Conn, conn *notify.Conn) {
	ping := time.NewTicker(h.pongWait * 9 / 10)
	defer ping.Stop()

	for {
		select {
		case <-conn.Done():
			_ = sock.SetWriteDeadline(time.Now().Add(h.writeWait))
			_ = sock.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case frame := <-conn.Send():
			_ = sock.SetWriteDeadline(time.Now().Add(h.writeWait))
			if err := sock.WriteMessage(websocket.TextMessage, frame); err != nil {
				h.logger.Debug(ctx, "write failed", logger.String("conn", conn.Handle()), logger.Error(err))
				_ = sock.Close()
				return
			}
		case <-ping.C:
			_ = sock.SetWriteDeadline(time.Now().Add(h.writeWait))
			if err := sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = sock.Close()
				return
			}
		}
	}
}
