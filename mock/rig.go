// Package mock simulates the externally visible interface of a rolling rig:
// config endpoints, lifecycle commands, the /ws event broadcast and step
// artifacts. It does not model motors or the camera.
package mock

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/ilievs/rigdash/core"
)

const DefaultTopic = "rig/events"

// Publisher receives a copy of every broadcast frame, e.g. an MQTT broker.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

type Options struct {
	// StepInterval is the time between simulated steps. Zero means use the
	// configured settle_ms.
	StepInterval time.Duration
	Publisher    Publisher
	Topic        string
	AccessLog    bool
}

type run struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	paused bool
}

func (r *run) setPaused(p bool) {
	r.mu.Lock()
	r.paused = p
	r.mu.Unlock()
}

func (r *run) isPaused() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.paused
}

type Rig struct {
	echo *echo.Echo
	opts Options
	hub  *hub

	mu        sync.Mutex
	cfg       core.DeviceConfig
	artifacts map[uint64][]byte
	active    *run
}

func NewRig(opts Options) *Rig {
	if opts.Topic == "" {
		opts.Topic = DefaultTopic
	}

	r := &Rig{
		echo:      echo.New(),
		opts:      opts,
		hub:       newHub(),
		cfg:       core.DefaultDeviceConfig(),
		artifacts: make(map[uint64][]byte),
	}

	e := r.echo
	e.HideBanner = true
	e.HidePort = true
	if opts.AccessLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/config", r.handleGetConfig)
	e.POST("/config", r.handleSetConfig)
	for _, cmd := range core.Commands {
		e.POST("/"+string(cmd), r.commandHandler(cmd))
	}
	e.GET("/ws", r.handleWebSocket)
	e.GET("/uploads/:name", r.handleUpload)

	return r
}

func (r *Rig) Handler() http.Handler {
	return r.echo
}

func (r *Rig) Start(addr string) error {
	err := r.echo.Start(addr)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (r *Rig) Shutdown(ctx context.Context) error {
	r.stopRun()
	r.hub.closeAll()
	return r.echo.Shutdown(ctx)
}

func (r *Rig) Config() core.DeviceConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg
}

// Broadcast sends a raw frame to every stream client and the publisher.
func (r *Rig) Broadcast(frame []byte) {
	r.hub.broadcast(frame)
	if r.opts.Publisher != nil {
		if err := r.opts.Publisher.Publish(r.opts.Topic, frame); err != nil {
			slog.Warn("failed to publish frame", "topic", r.opts.Topic, "error", err)
		}
	}
}

func (r *Rig) BroadcastJSON(v any) {
	frame, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to encode frame", "frame", v, "error", err)
		return
	}
	r.Broadcast(frame)
}

// StreamClients is the number of connected /ws clients.
func (r *Rig) StreamClients() int {
	return r.hub.count()
}

// DropStreamClients closes every /ws connection with a normal close frame.
func (r *Rig) DropStreamClients() {
	r.hub.closeAll()
}

func (r *Rig) handleGetConfig(c echo.Context) error {
	return c.JSON(http.StatusOK, r.Config())
}

var knownFields = map[string]bool{
	"sides":        true,
	"rolls":        true,
	"settle_ms":    true,
	"frame_size":   true,
	"jpeg_quality": true,
}

// handleSetConfig accepts partial updates like the real rig, but rejects
// unknown fields and out-of-range values.
func (r *Rig) handleSetConfig(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "unreadable body"})
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "body must be a JSON object"})
	}
	for k := range fields {
		if !knownFields[k] {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("Unknown config field '%s'", k)})
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	updated := r.cfg
	if err := json.Unmarshal(body, &updated); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	if err := updated.Validate(); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	}

	r.cfg = updated
	slog.Info("config updated", "config", updated)
	return c.JSON(http.StatusOK, updated)
}

func (r *Rig) commandHandler(cmd core.Command) echo.HandlerFunc {
	return func(c echo.Context) error {
		slog.Info("command received", "cmd", cmd, "request_id", c.Request().Header.Get("X-Request-ID"))
		switch cmd {
		case core.CommandStart:
			cfg := r.startRun()
			return c.JSON(http.StatusOK, map[string]any{
				"status": "started",
				"cmd": map[string]any{
					"cmd":          "start",
					"sides":        cfg.Sides,
					"rolls":        cfg.Rolls,
					"settle_ms":    cfg.SettleMs,
					"frame_size":   cfg.FrameSize,
					"jpeg_quality": cfg.JPEGQuality,
				},
			})
		case core.CommandPause:
			r.setPaused(true)
			r.BroadcastJSON(map[string]string{"cmd": "paused"})
			return c.JSON(http.StatusOK, map[string]string{"status": "paused"})
		case core.CommandResume:
			r.setPaused(false)
			r.BroadcastJSON(map[string]string{"cmd": "running"})
			return c.JSON(http.StatusOK, map[string]string{"status": "resumed"})
		case core.CommandStop:
			r.stopRun()
			r.BroadcastJSON(map[string]string{"cmd": "stopped"})
			return c.JSON(http.StatusOK, map[string]string{"status": "stopped"})
		}
		return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown command"})
	}
}

func (r *Rig) handleWebSocket(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Error("failed to upgrade the websocket", "error", err)
		return nil
	}
	client := &wsClient{conn: conn}
	r.hub.add(client)
	slog.Info("stream client connected", "remote", conn.RemoteAddr())

	defer func() {
		r.hub.remove(client)
		conn.Close()
		slog.Info("stream client disconnected", "remote", conn.RemoteAddr())
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return nil
		}
		if string(msg) == "ws_hello" {
			_ = client.write(websocket.TextMessage, []byte(`{"evt":"ready"}`))
			continue
		}
		_ = client.write(websocket.TextMessage, []byte("echo: "+string(msg)))
	}
}

func (r *Rig) handleUpload(c echo.Context) error {
	name := c.Param("name")
	seq, err := strconv.ParseUint(strings.TrimSuffix(name, ".jpg"), 10, 64)
	if err != nil || !strings.HasSuffix(name, ".jpg") {
		return c.NoContent(http.StatusNotFound)
	}

	r.mu.Lock()
	img, ok := r.artifacts[seq]
	r.mu.Unlock()
	if !ok {
		return c.NoContent(http.StatusNotFound)
	}

	c.Response().Header().Set("Cache-Control", "no-cache")
	return c.Blob(http.StatusOK, "image/jpeg", img)
}

// startRun replaces any active run with a new one using the current config.
func (r *Rig) startRun() core.DeviceConfig {
	r.stopRun()

	r.mu.Lock()
	cfg := r.cfg
	ctx, cancel := context.WithCancel(context.Background())
	rn := &run{cancel: cancel, done: make(chan struct{})}
	r.active = rn
	r.mu.Unlock()

	r.BroadcastJSON(map[string]string{"cmd": "running"})
	go r.loop(ctx, rn, cfg)
	return cfg
}

func (r *Rig) stopRun() {
	r.mu.Lock()
	rn := r.active
	r.active = nil
	r.mu.Unlock()

	if rn != nil {
		rn.cancel()
		<-rn.done
	}
}

func (r *Rig) setPaused(p bool) {
	r.mu.Lock()
	rn := r.active
	r.mu.Unlock()
	if rn != nil {
		rn.setPaused(p)
	}
}

func (r *Rig) stepInterval(cfg core.DeviceConfig) time.Duration {
	d := r.opts.StepInterval
	if d <= 0 {
		d = time.Duration(cfg.SettleMs) * time.Millisecond
	}
	if d < time.Millisecond {
		d = time.Millisecond
	}
	return d
}

func (r *Rig) loop(ctx context.Context, rn *run, cfg core.DeviceConfig) {
	defer close(rn.done)

	ticker := time.NewTicker(r.stepInterval(cfg))
	defer ticker.Stop()

	var seq uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if rn.isPaused() {
			continue
		}

		seq++
		img, err := renderArtifact(seq, cfg)
		if err != nil {
			slog.Error("failed to render artifact", "seq", seq, "error", err)
			continue
		}
		r.mu.Lock()
		r.artifacts[seq] = img
		r.mu.Unlock()

		r.BroadcastJSON(map[string]any{"evt": "step_ok", "seq": seq})

		if seq >= uint64(cfg.Rolls) {
			r.BroadcastJSON(map[string]string{"cmd": "finished"})
			r.mu.Lock()
			if r.active == rn {
				r.active = nil
			}
			r.mu.Unlock()
			return
		}
	}
}

// renderArtifact draws a flat tile whose shade depends on the step, standing
// in for the camera frame.
func renderArtifact(seq uint64, cfg core.DeviceConfig) ([]byte, error) {
	const side = 32
	img := image.NewRGBA(image.Rect(0, 0, side, side))
	face := uint8(seq % uint64(cfg.Sides))
	fill := color.RGBA{R: 40 * face, G: 255 - 30*face, B: 128, A: 255}
	for y := 0; y < side; y++ {
		for x := 0; x < side; x++ {
			img.Set(x, y, fill)
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: cfg.JPEGQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
