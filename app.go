package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/ilievs/rigdash/api"
	"github.com/ilievs/rigdash/dashboard"
	"github.com/ilievs/rigdash/mock"
	"github.com/ilievs/rigdash/mqtt"
	"github.com/ilievs/rigdash/rig"
	"github.com/ilievs/rigdash/stream"
	"github.com/ilievs/rigdash/tui"
)

const shutdownTimeout = 5 * time.Second

// application is one dashboard following one rig.
type application struct {
	settings Settings
	ctrl     *dashboard.Controller
	stream   *stream.Stream
}

func newApplication(s Settings) (*application, error) {
	client, err := rig.New(s.RigURL, rig.WithTimeout(s.RigTimeout))
	if err != nil {
		return nil, err
	}

	store := dashboard.NewStore(dashboard.Reducer{Preview: rig.NewPreviewResolver(client)})
	ctrl := dashboard.NewController(store, rig.NewConfigClient(client), rig.NewCommandDispatcher(client))

	var transport stream.Transport
	switch s.StreamTransport {
	case "", "ws":
		transport = stream.NewWebSocket(client.Base())
	case "mqtt":
		t, err := mqtt.NewTransport(s.MQTTBroker, s.MQTTTopic)
		if err != nil {
			return nil, err
		}
		t.ClientID = s.MQTTClientID
		t.Username = s.MQTTUsername
		t.Password = s.MQTTPassword
		transport = t
	default:
		return nil, errors.Errorf("unknown stream transport %q (want ws or mqtt)", s.StreamTransport)
	}

	st := stream.New(transport)
	st.Subscribe(ctrl.HandleEvent)

	return &application{settings: s, ctrl: ctrl, stream: st}, nil
}

// follow loads the config once and keeps the event stream open until ctx is
// done. A failed session is not fatal: the operator can reconnect.
func (a *application) follow(ctx context.Context) error {
	go func() {
		if _, err := a.ctrl.LoadConfig(ctx); err != nil {
			slog.Warn("initial config load failed", "error", err)
		}
	}()

	defer a.stream.Close()

	if a.settings.Reconnect {
		r := stream.NewReconnector(a.stream, a.settings.BackoffInitial, a.settings.BackoffMax)
		if err := r.Run(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	}

	if err := a.stream.Run(ctx); err != nil {
		slog.Warn("event stream ended", "error", err)
	}
	<-ctx.Done()
	return nil
}

func runServe(ctx context.Context, s Settings) error {
	app, err := newApplication(s)
	if err != nil {
		return err
	}

	server := api.New(app.ctrl, app.stream, api.Options{AccessLog: true})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.follow(ctx)
	})
	g.Go(func() error {
		return server.Start(s.HTTPListen)
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func runTUI(ctx context.Context, s Settings) error {
	app, err := newApplication(s)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.follow(ctx)
	})
	g.Go(func() error {
		// quitting the terminal ends the session
		defer cancel()
		return tui.Run(ctx, app.ctrl, app.stream)
	})
	return g.Wait()
}

func runMockRig(ctx context.Context, s Settings) error {
	opts := mock.Options{StepInterval: s.MockRigStep, AccessLog: true}

	var broker *mqtt.Broker
	if s.MockRigMQTTListen != "" {
		broker = mqtt.NewBroker(mqtt.BrokerOptions{
			Address:  s.MockRigMQTTListen,
			Username: s.MQTTUsername,
			Password: s.MQTTPassword,
		})
		if err := broker.Start(); err != nil {
			return err
		}
		defer broker.Close()
		opts.Publisher = broker
		opts.Topic = s.MQTTTopic
	}

	r := mock.NewRig(opts)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("mock rig listening", "address", s.MockRigListen)
		return r.Start(s.MockRigListen)
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return r.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
