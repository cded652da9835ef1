package stream

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

const (
	wsPath         = "/ws"
	closeWait      = time.Second
	handshakeLimit = 10 * time.Second
)

// WebSocket dials the rig's /ws endpoint.
type WebSocket struct {
	URL    string
	Header http.Header
	Dialer *websocket.Dialer
}

// NewWebSocket derives ws://host/ws (or wss://) from the rig's HTTP address.
func NewWebSocket(rigURL *url.URL) *WebSocket {
	u := *rigURL
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + wsPath
	u.RawQuery = ""

	return &WebSocket{
		URL: u.String(),
		Dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeLimit,
		},
	}
}

func (w *WebSocket) Dial(ctx context.Context) (Conn, error) {
	dialer := w.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	conn, resp, err := dialer.DialContext(ctx, w.URL, w.Header)
	if err != nil {
		if resp != nil {
			return nil, errors.Wrapf(err, "websocket handshake with %s: %s", w.URL, resp.Status)
		}
		return nil, errors.Wrapf(err, "websocket dial %s", w.URL)
	}
	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn     *websocket.Conn
	once     sync.Once
	closeErr error
}

func (c *wsConn) ReadFrame(ctx context.Context) ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil, io.EOF
		}
		return nil, err
	}
	return data, nil
}

func (c *wsConn) Close() error {
	c.once.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWait))
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
