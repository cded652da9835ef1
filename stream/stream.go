// Package stream keeps the long-lived event connection to the rig and turns
// its frames into core events.
package stream

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/pkg/errors"

	"github.com/ilievs/rigdash/core"
)

var ErrAlreadyRunning = errors.New("stream is already running")

// Transport opens one connection to the rig's event source.
type Transport interface {
	Dial(ctx context.Context) (Conn, error)
}

// Conn yields raw frames. ReadFrame returns io.EOF when the peer closed the
// connection normally. Close must be safe to call more than once.
type Conn interface {
	ReadFrame(ctx context.Context) ([]byte, error)
	Close() error
}

type Handler func(core.Event)

// Stream runs the Connecting -> Connected -> Disconnected state machine.
// Disconnected is steady; only Reconnect (or Run) leaves it.
type Stream struct {
	transport Transport

	mu       sync.Mutex
	state    core.ConnState
	handlers []Handler
	cancel   context.CancelFunc
	done     chan struct{}
}

func New(t Transport) *Stream {
	return &Stream{
		transport: t,
		state:     core.Connecting,
	}
}

// Subscribe registers h. Handlers run synchronously on the stream goroutine
// in the order frames arrive.
func (s *Stream) Subscribe(h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, h)
}

func (s *Stream) State() core.ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Stream) setState(st core.ConnState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Stream) emit(ev core.Event) {
	s.mu.Lock()
	handlers := make([]Handler, len(s.handlers))
	copy(handlers, s.handlers)
	s.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}

// run is one session's bookkeeping between begin and session.
type run struct {
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Run connects and pumps frames until the connection ends or ctx is done.
// It returns nil when the session ended normally.
func (s *Stream) Run(ctx context.Context) error {
	r, err := s.begin(ctx)
	if err != nil {
		return err
	}
	return s.session(r)
}

// Reconnect is the explicit way out of Disconnected. A session that has
// already announced its close is allowed to finish first.
func (s *Stream) Reconnect(ctx context.Context) error {
	if err := s.awaitFinished(ctx); err != nil {
		return err
	}
	return s.Run(ctx)
}

// Start is Reconnect without blocking on the session. When it returns the
// stream has already left Disconnected; the channel reports how the session
// ended.
func (s *Stream) Start(ctx context.Context) (<-chan error, error) {
	if err := s.awaitFinished(ctx); err != nil {
		return nil, err
	}
	r, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	errc := make(chan error, 1)
	go func() {
		errc <- s.session(r)
	}()
	return errc, nil
}

func (s *Stream) awaitFinished(ctx context.Context) error {
	s.mu.Lock()
	done, state := s.done, s.state
	s.mu.Unlock()

	if done != nil && state == core.Disconnected {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// begin claims the stream for one session and enters Connecting.
func (s *Stream) begin(ctx context.Context) (*run, error) {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	r := &run{ctx: runCtx, cancel: cancel, done: make(chan struct{})}
	s.cancel = cancel
	s.done = r.done
	redial := s.state == core.Disconnected
	s.state = core.Connecting
	s.mu.Unlock()

	if redial {
		s.emit(core.ConnectionDialing{})
	}
	return r, nil
}

func (s *Stream) session(r *run) error {
	runCtx := r.ctx
	defer func() {
		r.cancel()
		s.mu.Lock()
		s.cancel = nil
		s.done = nil
		s.mu.Unlock()
		close(r.done)
	}()

	conn, err := s.transport.Dial(runCtx)
	if err != nil {
		if runCtx.Err() != nil {
			s.disconnected(core.CloseNormal, nil)
			return nil
		}
		err = errors.Wrap(err, "dial event stream")
		s.disconnected(core.CloseError, err)
		return err
	}

	// Cancelling the run unblocks a pending ReadFrame.
	stop := context.AfterFunc(runCtx, func() {
		_ = conn.Close()
	})

	s.setState(core.Connected)
	sessions.WithLabelValues("opened").Inc()
	slog.Info("event stream connected")
	s.emit(core.ConnectionOpened{})

	err = s.pump(runCtx, conn)

	stop()
	_ = conn.Close()

	switch {
	case runCtx.Err() != nil, errors.Is(err, io.EOF):
		s.disconnected(core.CloseNormal, nil)
		return nil
	default:
		s.disconnected(core.CloseError, err)
		return err
	}
}

// Close ends the current session, if any, and waits until its connection has
// been released.
func (s *Stream) Close() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

func (s *Stream) disconnected(cause core.CloseCause, err error) {
	s.setState(core.Disconnected)
	sessions.WithLabelValues(cause.String()).Inc()
	if err != nil {
		slog.Warn("event stream disconnected", "cause", cause, "error", err)
	} else {
		slog.Info("event stream disconnected", "cause", cause)
	}
	s.emit(core.ConnectionClosed{Cause: cause, Err: err})
}

func (s *Stream) pump(ctx context.Context, conn Conn) error {
	for {
		data, err := conn.ReadFrame(ctx)
		if err != nil {
			return err
		}

		events, err := core.DecodeFrame(data)
		if err != nil {
			frames.WithLabelValues("dropped").Inc()
			slog.Debug("dropped stream frame", "error", err)
			continue
		}
		frames.WithLabelValues("accepted").Inc()
		for _, ev := range events {
			s.emit(ev)
		}
	}
}
