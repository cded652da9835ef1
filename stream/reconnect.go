package stream

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/pkg/errors"

	"github.com/ilievs/rigdash/core"
)

// Reconnector re-runs a Stream with exponential backoff until ctx is done.
// The delay resets after any session that reached Connected.
type Reconnector struct {
	stream  *Stream
	initial time.Duration
	max     time.Duration
	opened  atomic.Bool
}

func NewReconnector(s *Stream, initial, max time.Duration) *Reconnector {
	r := &Reconnector{stream: s, initial: initial, max: max}
	s.Subscribe(func(ev core.Event) {
		if _, ok := ev.(core.ConnectionOpened); ok {
			r.opened.Store(true)
		}
	})
	return r
}

func (r *Reconnector) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if r.initial > 0 {
		b.InitialInterval = r.initial
	}
	if r.max > 0 {
		b.MaxInterval = r.max
	}
	b.Reset()
	return b
}

func (r *Reconnector) Run(ctx context.Context) error {
	b := r.newBackOff()
	for {
		// a session started elsewhere is waited out like any other
		err := r.stream.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}

		if r.opened.Swap(false) {
			b.Reset()
		}
		wait := b.NextBackOff()
		if !errors.Is(err, ErrAlreadyRunning) {
			slog.Info("reconnecting event stream", "in", wait, "error", err)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}
