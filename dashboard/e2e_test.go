package dashboard_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ilievs/rigdash/core"
	"github.com/ilievs/rigdash/dashboard"
	"github.com/ilievs/rigdash/mock"
	"github.com/ilievs/rigdash/rig"
	"github.com/ilievs/rigdash/stream"
)

type harness struct {
	rig    *mock.Rig
	ctl    *dashboard.Controller
	stream *stream.Stream
}

func newHarness(t *testing.T, step time.Duration) *harness {
	t.Helper()

	r := mock.NewRig(mock.Options{StepInterval: step})
	srv := httptest.NewServer(r.Handler())

	client, err := rig.New(srv.URL)
	require.NoError(t, err)

	store := dashboard.NewStore(dashboard.Reducer{Preview: rig.NewPreviewResolver(client)})
	ctl := dashboard.NewController(store, rig.NewConfigClient(client), rig.NewCommandDispatcher(client))

	s := stream.New(stream.NewWebSocket(client.Base()))
	s.Subscribe(ctl.HandleEvent)
	go func() { _ = s.Run(context.Background()) }()

	t.Cleanup(func() {
		_ = s.Close()
		_ = r.Shutdown(context.Background())
		srv.Close()
	})

	require.Eventually(t, func() bool {
		return store.Snapshot().Connection == core.Connected && r.StreamClients() == 1
	}, 2*time.Second, 5*time.Millisecond)

	return &harness{rig: r, ctl: ctl, stream: s}
}

func (h *harness) waitFor(t *testing.T, cond func(dashboard.State) bool) dashboard.State {
	t.Helper()
	var last dashboard.State
	require.Eventually(t, func() bool {
		last = h.ctl.Store().Snapshot()
		return cond(last)
	}, 3*time.Second, 5*time.Millisecond)
	return last
}

func TestOperatorScenario(t *testing.T) {
	h := newHarness(t, time.Hour)
	ctx := context.Background()

	want := core.DeviceConfig{Sides: 6, Rolls: 10, SettleMs: 500, FrameSize: "720p", JPEGQuality: 80}
	_, err := h.ctl.SaveConfig(ctx, want)
	require.NoError(t, err)
	got, err := h.ctl.LoadConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, want, *h.ctl.Store().Snapshot().Config)

	res := h.ctl.Dispatch(ctx, core.CommandStart)
	require.NoError(t, res.Err)
	s := h.ctl.Store().Snapshot()
	assert.True(t, strings.HasPrefix(s.Log[len(s.Log)-1].Message, "/start → "), s.Log[len(s.Log)-1].Message)

	h.waitFor(t, func(s dashboard.State) bool { return s.DisplayStatus == "State: running" })

	h.rig.BroadcastJSON(map[string]any{"evt": "step_ok", "seq": 1})
	s = h.waitFor(t, func(s dashboard.State) bool { return s.LastSeq != nil && *s.LastSeq == 1 })
	assert.Contains(t, s.PreviewURL, "/uploads/1.jpg?t=")
	preview := s.PreviewURL

	res = h.ctl.Dispatch(ctx, core.CommandStop)
	require.NoError(t, res.Err)
	s = h.waitFor(t, func(s dashboard.State) bool { return s.DisplayStatus == "State: stopped" })
	assert.Equal(t, preview, s.PreviewURL, "stopping keeps the last preview")
	assert.Equal(t, core.CommandStop, s.LastCommand.Command)
}

func TestMalformedFramesLeaveStateUnchanged(t *testing.T) {
	h := newHarness(t, time.Hour)

	h.rig.BroadcastJSON(map[string]any{"cmd": "running"})
	before := h.waitFor(t, func(s dashboard.State) bool { return s.DisplayStatus == "State: running" })

	h.rig.Broadcast([]byte("{not json"))
	h.rig.Broadcast([]byte(`{"evt":"ready"}`))
	h.rig.Broadcast([]byte(`{"evt":"step_ok","seq":"1"}`))
	h.rig.Broadcast([]byte(`{"cmd":"paused"} trailing junk`))
	// a valid marker frame proves the junk ahead of it was processed
	h.rig.BroadcastJSON(map[string]any{"cmd": "running"})

	time.Sleep(50 * time.Millisecond)
	after := h.ctl.Store().Snapshot()
	assert.Equal(t, before, after)
	assert.Equal(t, core.Connected, h.stream.State())
}

func TestCombinedFrameUpdatesStatusThenPreview(t *testing.T) {
	h := newHarness(t, time.Hour)

	h.rig.Broadcast([]byte(`{"cmd":"running","evt":"step_ok","seq":2}`))
	s := h.waitFor(t, func(s dashboard.State) bool { return s.LastSeq != nil && *s.LastSeq == 2 })
	assert.Equal(t, "Rolling… seq 2", s.DisplayStatus)
	assert.Contains(t, s.PreviewURL, "/uploads/2.jpg?t=")
}

func TestFullRunShowsEveryArtifact(t *testing.T) {
	h := newHarness(t, 5*time.Millisecond)
	ctx := context.Background()

	cfg := core.DefaultDeviceConfig()
	cfg.Rolls = 3
	_, err := h.ctl.SaveConfig(ctx, cfg)
	require.NoError(t, err)

	require.NoError(t, h.ctl.Dispatch(ctx, core.CommandStart).Err)
	s := h.waitFor(t, func(s dashboard.State) bool { return s.DisplayStatus == "State: finished" })
	require.NotNil(t, s.LastSeq)
	assert.Equal(t, uint64(3), *s.LastSeq)

	resp, err := http.Get(s.PreviewURL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/jpeg", resp.Header.Get("Content-Type"))
}

func TestDisconnectKeepsDashboardUsable(t *testing.T) {
	h := newHarness(t, time.Hour)
	ctx := context.Background()

	h.rig.BroadcastJSON(map[string]any{"evt": "step_ok", "seq": 7})
	h.waitFor(t, func(s dashboard.State) bool { return s.LastSeq != nil && *s.LastSeq == 7 })

	h.rig.DropStreamClients()
	s := h.waitFor(t, func(s dashboard.State) bool { return s.Connection == core.Disconnected })
	assert.Contains(t, s.PreviewURL, "/uploads/7.jpg")

	_, err := h.ctl.LoadConfig(ctx)
	require.NoError(t, err, "config stays editable while the stream is down")

	go func() { _ = h.stream.Reconnect(ctx) }()
	h.waitFor(t, func(s dashboard.State) bool { return s.Connection == core.Connected })
	require.Eventually(t, func() bool { return h.rig.StreamClients() == 1 }, 2*time.Second, 5*time.Millisecond)

	h.rig.BroadcastJSON(map[string]any{"evt": "step_ok", "seq": 1})
	s = h.waitFor(t, func(s dashboard.State) bool { return s.LastSeq != nil && *s.LastSeq == 1 })
	assert.Contains(t, s.PreviewURL, "/uploads/1.jpg")
}
