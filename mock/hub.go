package mock

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const writeWait = 2 * time.Second

type wsClient struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *wsClient) write(msgType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(msgType, data)
}

// hub fans frames out to every connected websocket client.
type hub struct {
	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

func newHub() *hub {
	return &hub{clients: make(map[*wsClient]struct{})}
}

func (h *hub) add(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

func (h *hub) remove(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
}

func (h *hub) snapshot() []*wsClient {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		out = append(out, c)
	}
	return out
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// broadcast drops clients whose write fails.
func (h *hub) broadcast(frame []byte) {
	for _, c := range h.snapshot() {
		if err := c.write(websocket.TextMessage, frame); err != nil {
			slog.Debug("dropping websocket client", "remote", c.conn.RemoteAddr(), "error", err)
			h.remove(c)
			c.conn.Close()
		}
	}
}

// closeAll sends a normal close frame and hangs up on every client.
func (h *hub) closeAll() {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "rig going away")
	for _, c := range h.snapshot() {
		_ = c.write(websocket.CloseMessage, msg)
		h.remove(c)
		c.conn.Close()
	}
}
