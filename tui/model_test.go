package tui

import (
	"context"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ilievs/rigdash/core"
	"github.com/ilievs/rigdash/dashboard"
)

type fakeActions struct {
	mu       sync.Mutex
	loads    int
	commands []core.Command
}

func (f *fakeActions) LoadConfig(ctx context.Context) (core.DeviceConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	return core.DefaultDeviceConfig(), nil
}

func (f *fakeActions) Dispatch(ctx context.Context, cmd core.Command) core.CommandResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, cmd)
	return core.CommandResult{Command: cmd}
}

type fakeStream struct {
	state      core.ConnState
	reconnects chan struct{}
}

func (f *fakeStream) State() core.ConnState { return f.state }

func (f *fakeStream) Start(ctx context.Context) (<-chan error, error) {
	f.reconnects <- struct{}{}
	return make(chan error, 1), nil
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func newModel(st core.ConnState) (Model, *fakeActions, *fakeStream, chan dashboard.State) {
	actions := &fakeActions{}
	stream := &fakeStream{state: st, reconnects: make(chan struct{}, 1)}
	updates := make(chan dashboard.State, 1)
	return New(context.Background(), actions, stream, updates), actions, stream, updates
}

func TestKeysDispatchCommands(t *testing.T) {
	m, actions, _, _ := newModel(core.Connected)

	for _, k := range []string{"s", "p", "r", "x"} {
		_, cmd := m.Update(key(k))
		require.NotNil(t, cmd, k)
		assert.IsType(t, actionDoneMsg{}, cmd())
	}
	assert.Equal(t, []core.Command{core.CommandStart, core.CommandPause, core.CommandResume, core.CommandStop}, actions.commands)

	_, cmd := m.Update(key("z"))
	assert.Nil(t, cmd)
}

func TestReloadKey(t *testing.T) {
	m, actions, _, _ := newModel(core.Connected)

	_, cmd := m.Update(key("l"))
	require.NotNil(t, cmd)
	cmd()
	assert.Equal(t, 1, actions.loads)
}

func TestReconnectOnlyWhenDisconnected(t *testing.T) {
	m, _, _, _ := newModel(core.Connected)
	_, cmd := m.Update(key("c"))
	assert.Nil(t, cmd)

	m, _, stream, _ := newModel(core.Disconnected)
	_, cmd = m.Update(key("c"))
	require.NotNil(t, cmd)
	cmd()

	select {
	case <-stream.reconnects:
	case <-time.After(time.Second):
		t.Fatal("reconnect was not requested")
	}
}

func TestQuit(t *testing.T) {
	m, _, _, _ := newModel(core.Connected)

	next, cmd := m.Update(key("q"))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Empty(t, next.View())
}

func TestStateUpdatesRender(t *testing.T) {
	m, _, _, updates := newModel(core.Connecting)

	seq := uint64(4)
	cfg := core.DefaultDeviceConfig()
	updates <- dashboard.State{
		Config:        &cfg,
		Connection:    core.Connected,
		DisplayStatus: "Rolling… seq 4",
		PreviewURL:    "http://rig/uploads/4.jpg?t=1",
		LastSeq:       &seq,
		LastCommand:   &core.CommandResult{Command: core.CommandStop, Err: errors.New("boom")},
		Log: []dashboard.LogEntry{
			{At: time.Now(), Message: "Config loaded"},
			{At: time.Now(), Error: true, Message: "Error /stop: boom"},
		},
	}

	msg := m.Init()()
	next, cmd := m.Update(msg)
	assert.NotNil(t, cmd, "keeps listening for updates")

	view := next.View()
	assert.Contains(t, view, "Connected")
	assert.Contains(t, view, "Rolling… seq 4")
	assert.Contains(t, view, "sides=6 rolls=10")
	assert.Contains(t, view, "/uploads/4.jpg")
	assert.Contains(t, view, "Config loaded")
	assert.Contains(t, view, "Error /stop: boom")
}

func TestLogShowsTail(t *testing.T) {
	m, _, _, _ := newModel(core.Connected)

	var entries []dashboard.LogEntry
	for i := 0; i < logLines+5; i++ {
		entries = append(entries, dashboard.LogEntry{At: time.Now(), Message: "entry-" + string(rune('a'+i))})
	}
	next, _ := m.Update(stateMsg(dashboard.State{Log: entries}))

	view := next.View()
	assert.NotContains(t, view, "entry-a")
	assert.NotContains(t, view, "entry-e")
	assert.Contains(t, view, "entry-f")
	assert.Contains(t, view, "entry-"+string(rune('a'+logLines+4)))
}
