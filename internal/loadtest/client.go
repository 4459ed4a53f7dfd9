package loadtest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/okian/pairup/internal/adapters/notify"
	"github.com/okian/pairup/internal/domain/model"
	"github.com/okian/pairup/pkg/logger"
)

// wsURL turns the service base URL into its /ws endpoint.
func wsURL(base string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", fmt.Errorf("parsing base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path += "/ws"
	return u.String(), nil
}

// client is one simulated participant holding a WebSocket.
type client struct {
	profile notify.ProfileView
	conn    *websocket.Conn
	verbose bool
	done    chan struct{}

	mu     sync.Mutex
	result Result
}

func dial(ctx context.Context, endpoint string, p notify.ProfileView, verbose bool) (*client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", endpoint, err)
	}
	c := &client{
		profile: p,
		conn:    conn,
		verbose: verbose,
		done:    make(chan struct{}),
		result:  Result{ParticipantID: p.ID},
	}
	go c.readLoop(ctx)
	return c, nil
}

// join sends joinQueue with a fresh request id.
func (c *client) join() error {
	return c.conn.WriteJSON(notify.Envelope[notify.ProfileView]{
		Type:      string(model.CommandJoin),
		RequestID: uuid.NewString(),
		Payload:   c.profile,
	})
}

func (c *client) readLoop(ctx context.Context) {
	defer close(c.done)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var env notify.Envelope[json.RawMessage]
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		c.record(ctx, env)
	}
}

func (c *client) record(ctx context.Context, env notify.Envelope[json.RawMessage]) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch notify.Kind(env.Type) {
	case notify.KindMatched:
		var s notify.SessionView
		if err := json.Unmarshal(env.Payload, &s); err == nil {
			c.result.Sessions = append(c.result.Sessions, s)
		}
	case notify.KindMatchUpdate:
		c.result.Updates++
	case notify.KindNotification:
		var text string
		_ = json.Unmarshal(env.Payload, &text)
		c.result.Notices = append(c.result.Notices, text)
		if c.verbose {
			logger.Get().Debug(ctx, "notice", logger.String("participant", c.profile.ID), logger.String("text", text))
		}
	}
}

// close ends the connection and returns what the participant saw.
func (c *client) close() Result {
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = c.conn.Close()
	<-c.done

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}
