// Package mqtt carries rig stream frames over MQTT: an embedded broker for
// the simulator and a paho client transport for the dashboard.
package mqtt

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/ilievs/rigdash/stream"
)

const (
	frameBuffer     = 64
	disconnectLimit = 2 * time.Second
)

// Transport subscribes to the topic a rig publishes its frames on. It
// implements stream.Transport.
type Transport struct {
	Broker   *url.URL
	Topic    string
	ClientID string
	Username string
	Password string
}

func NewTransport(broker, topic string) (*Transport, error) {
	u, err := url.Parse(broker)
	if err != nil {
		return nil, errors.Wrapf(err, "parse mqtt broker %q", broker)
	}
	return &Transport{Broker: u, Topic: topic}, nil
}

func (t *Transport) Dial(ctx context.Context) (stream.Conn, error) {
	clientID := t.ClientID
	if clientID == "" {
		clientID = "rigdash-" + uuid.NewString()[:8]
	}

	c := &conn{
		frames: make(chan []byte, frameBuffer),
		down:   make(chan error, 1),
		closed: make(chan struct{}),
	}

	cliCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{t.Broker},
		ConnectUsername: t.Username,
		ConnectPassword: []byte(t.Password),
		KeepAlive:       20, // Keepalive message should be sent every 20 seconds
		// A dropped session is reported to the stream, which decides whether
		// to reconnect; nothing should be replayed from a previous session.
		CleanStartOnInitialConnection: true,
		SessionExpiryInterval:         0,
		OnConnectError: func(err error) {
			slog.Warn("mqtt connection attempt failed", "broker", t.Broker.String(), "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: clientID,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				func(pr paho.PublishReceived) (bool, error) {
					c.deliver(pr.Packet.Payload)
					return true, nil
				}},
			OnClientError: func(err error) {
				c.fail(err)
			},
			OnServerDisconnect: func(d *paho.Disconnect) {
				if d.ReasonCode == 0 {
					c.fail(io.EOF)
					return
				}
				if d.Properties != nil && d.Properties.ReasonString != "" {
					c.fail(fmt.Errorf("server requested disconnect: %s", d.Properties.ReasonString))
					return
				}
				c.fail(fmt.Errorf("server requested disconnect; reason code: %d", d.ReasonCode))
			},
		},
	}

	// the connection outlives the dial context
	connCtx, cancel := context.WithCancel(context.Background())
	cm, err := autopaho.NewConnection(connCtx, cliCfg)
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "start mqtt connection")
	}
	c.cm = cm
	c.cancel = cancel

	if err := cm.AwaitConnection(ctx); err != nil {
		_ = c.Close()
		return nil, errors.Wrapf(err, "connect to mqtt broker %s", t.Broker)
	}

	if _, err := cm.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{
			{Topic: t.Topic, QoS: 1},
		},
	}); err != nil {
		_ = c.Close()
		return nil, errors.Wrapf(err, "subscribe to %s", t.Topic)
	}

	slog.Info("mqtt subscription made", "topic", t.Topic, "client", clientID)
	return c, nil
}

type conn struct {
	cm     *autopaho.ConnectionManager
	cancel context.CancelFunc

	frames chan []byte
	down   chan error
	closed chan struct{}
	once   sync.Once
}

// deliver keeps arrival order; it blocks while the reader is behind and
// gives up once the connection is closed.
func (c *conn) deliver(payload []byte) {
	frame := make([]byte, len(payload))
	copy(frame, payload)
	select {
	case c.frames <- frame:
	case <-c.closed:
	}
}

func (c *conn) fail(err error) {
	select {
	case c.down <- err:
	default:
	}
}

func (c *conn) ReadFrame(ctx context.Context) ([]byte, error) {
	// drain what already arrived before reporting a disconnect
	select {
	case f := <-c.frames:
		return f, nil
	default:
	}

	select {
	case f := <-c.frames:
		return f, nil
	case err := <-c.down:
		return nil, err
	case <-c.closed:
		return nil, errors.New("mqtt connection closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *conn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.closed)
		ctx, cancel := context.WithTimeout(context.Background(), disconnectLimit)
		defer cancel()
		err = c.cm.Disconnect(ctx)
		c.cancel()
		<-c.cm.Done()
	})
	return err
}
