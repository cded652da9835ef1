package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const writeWait = 2 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleEvents pushes the full state on connect and after every change.
// Slow viewers skip intermediate states.
func (s *Server) handleEvents(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Error("failed to upgrade the websocket", "error", err)
		return nil
	}
	defer conn.Close()

	updates, unsubscribe := s.ctrl.Store().Subscribe()
	defer unsubscribe()

	// the viewer only ever closes; reading is how we notice
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case st := <-updates:
			frame, err := encodeState(st)
			if err != nil {
				slog.Error("failed to encode state", "error", err)
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return nil
			}
		case <-gone:
			return nil
		case <-s.ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(writeWait))
			return nil
		}
	}
}
