package uiserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// writeTimeout bounds how long a single event push may block a slow
// client before it is dropped, so one stalled UI window can't back up
// event delivery to every other connected client.
const writeTimeout = 500 * time.Millisecond

// client is one connected UI session. Adapted from Zoex2304's
// register/unregister hub pattern, narrowed from per-user multi-device
// fan-out to a flat set of connections since every ciallo UI client
// receives the identical event stream.
type client struct {
	conn *websocket.Conn
	send chan envelope
}

// hub fans events out to every connected UI client; inbound commands are
// dispatched by the Server, not the hub.
type hub struct {
	log *slog.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
}

func newHub(log *slog.Logger) *hub {
	if log == nil {
		log = slog.Default()
	}
	return &hub{log: log, clients: make(map[*client]struct{})}
}

func (h *hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// broadcast pushes env to every connected client's send queue, dropping
// it for any client whose queue is already full rather than blocking the
// caller on a stalled connection.
func (h *hub) broadcast(env envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		select {
		case c.send <- env:
		default:
			h.log.Warn("uiserver: dropping event for slow client")
		}
	}
}

// writeLoop drains c.send to the underlying connection until it closes.
func (h *hub) writeLoop(c *client) {
	for env := range c.send {
		payload, err := json.Marshal(env)
		if err != nil {
			h.log.Warn("uiserver: marshal outbound frame failed", "error", err)
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err = c.conn.Write(ctx, websocket.MessageText, payload)
		cancel()
		if err != nil {
			return
		}
	}
}
