package mqtt

import (
	"bytes"
	"log/slog"
	"sync"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/packets"
)

// SessionHook keeps track of the clients following the rig's event topic.
type SessionHook struct {
	mochi.HookBase

	mu      sync.Mutex
	clients map[string]struct{}
}

// ID returns the ID of the hook.
func (h *SessionHook) ID() string {
	return "rig-sessions"
}

// Provides indicates which methods a hook provides.
func (h *SessionHook) Provides(b byte) bool {
	return bytes.Contains([]byte{
		mochi.OnSessionEstablished,
		mochi.OnDisconnect,
	}, []byte{b})
}

func (h *SessionHook) Init(config any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients == nil {
		h.clients = make(map[string]struct{})
	}
	return nil
}

// OnSessionEstablished is called when a new client establishes a session (after OnConnect).
func (h *SessionHook) OnSessionEstablished(cl *mochi.Client, pk packets.Packet) {
	h.mu.Lock()
	h.clients[cl.ID] = struct{}{}
	h.mu.Unlock()
	slog.Info("mqtt client connected", "client", cl.ID)
}

// OnDisconnect is called when a client is disconnected for any reason.
func (h *SessionHook) OnDisconnect(cl *mochi.Client, err error, expire bool) {
	h.mu.Lock()
	delete(h.clients, cl.ID)
	h.mu.Unlock()
	slog.Info("mqtt client disconnected", "client", cl.ID, "error", err)
}

func (h *SessionHook) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
