// Package api exposes the dashboard to operators over HTTP: the current state,
// config and command actions, and a websocket feed of state changes.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ilievs/rigdash/core"
	"github.com/ilievs/rigdash/dashboard"
	"github.com/ilievs/rigdash/stream"
)

// Stream is the part of the event stream the operator can steer.
type Stream interface {
	State() core.ConnState
	Start(ctx context.Context) (<-chan error, error)
}

type Options struct {
	AccessLog bool
}

type Server struct {
	echo   *echo.Echo
	ctrl   *dashboard.Controller
	stream Stream

	// background sessions started by /api/stream/reconnect
	ctx    context.Context
	cancel context.CancelFunc
}

type errorBody struct {
	Error  string   `json:"error"`
	Fields []string `json:"fields,omitempty"`
}

func New(ctrl *dashboard.Controller, st Stream, opts Options) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		echo:   echo.New(),
		ctrl:   ctrl,
		stream: st,
		ctx:    ctx,
		cancel: cancel,
	}

	e := s.echo
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	if opts.AccessLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	// Routes
	e.GET("/api/state", s.handleState)
	e.POST("/api/config/reload", s.handleReload)
	e.PUT("/api/config", s.handleSaveConfig)
	e.POST("/api/commands/:name", s.handleCommand)
	e.POST("/api/stream/reconnect", s.handleReconnect)
	e.GET("/api/events", s.handleEvents)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	return s
}

func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start blocks serving on addr until Shutdown.
func (s *Server) Start(addr string) error {
	slog.Info("operator api listening", "address", addr)
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrapf(err, "serve operator api on %s", addr)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	return s.echo.Shutdown(ctx)
}

func (s *Server) handleState(c echo.Context) error {
	return c.JSON(http.StatusOK, s.ctrl.Store().Snapshot())
}

func (s *Server) handleReload(c echo.Context) error {
	if _, err := s.ctrl.LoadConfig(c.Request().Context()); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, s.ctrl.Store().Snapshot())
}

func (s *Server) handleSaveConfig(c echo.Context) error {
	var cfg core.DeviceConfig
	dec := json.NewDecoder(c.Request().Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "invalid config body: " + err.Error()})
	}

	ack, err := s.ctrl.SaveConfig(c.Request().Context(), cfg)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"ack":   ack,
		"state": s.ctrl.Store().Snapshot(),
	})
}

func (s *Server) handleCommand(c echo.Context) error {
	cmd, err := core.ParseCommand(c.Param("name"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: err.Error()})
	}

	res := s.ctrl.Dispatch(c.Request().Context(), cmd)
	if !res.OK() {
		return c.JSON(http.StatusBadGateway, res)
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleReconnect(c echo.Context) error {
	if st := s.stream.State(); st != core.Disconnected {
		return c.JSON(http.StatusConflict, errorBody{Error: "event stream is " + st.String()})
	}

	errc, err := s.stream.Start(s.ctx)
	switch {
	case errors.Is(err, stream.ErrAlreadyRunning):
		return c.JSON(http.StatusConflict, errorBody{Error: "event stream is " + s.stream.State().String()})
	case err != nil:
		return c.JSON(http.StatusServiceUnavailable, errorBody{Error: err.Error()})
	}

	go func() {
		if err := <-errc; err != nil {
			slog.Warn("reconnected session ended", "error", err)
		}
	}()
	return c.JSON(http.StatusAccepted, map[string]string{"connection": s.stream.State().String()})
}

// fail maps a config error onto a status: rejected values are the operator's
// to fix, anything else is the rig being unreachable or misbehaving.
func (s *Server) fail(c echo.Context, err error) error {
	var verr *core.ValidationError
	if errors.As(err, &verr) {
		return c.JSON(http.StatusUnprocessableEntity, errorBody{Error: verr.Message, Fields: verr.Fields})
	}
	return c.JSON(http.StatusBadGateway, errorBody{Error: err.Error()})
}

func encodeState(st dashboard.State) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(st); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
