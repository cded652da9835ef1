package mqtt

import (
	"log/slog"
	"os"
	"sync"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/pkg/errors"
)

type BrokerOptions struct {
	Address string
	// Username and Password, when set, are the only credentials accepted
	// from remote clients. Local clients are always allowed.
	Username string
	Password string
}

// Broker is an embedded MQTT server. The rig simulator publishes its stream
// frames through it so the dashboard can follow the rig over MQTT.
type Broker struct {
	server   *mochi.Server
	opts     BrokerOptions
	sessions *SessionHook

	mu      sync.Mutex
	started bool
}

func NewBroker(opts BrokerOptions) *Broker {
	server := mochi.New(&mochi.Options{
		InlineClient: true,
		Logger:       slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})),
	})

	return &Broker{
		server:   server,
		opts:     opts,
		sessions: &SessionHook{},
	}
}

func (b *Broker) ledger() *auth.Ledger {
	return &auth.Ledger{
		Auth: auth.AuthRules{ // Auth disallows all by default
			{Username: auth.RString(b.opts.Username), Password: auth.RString(b.opts.Password), Allow: true},
			{Remote: "127.0.0.1:*", Allow: true},
			{Remote: "localhost:*", Allow: true},
		},
		ACL: auth.ACLRules{
			{Remote: "127.0.0.1:*"}, // local superuser allow all
			{
				// remote operators may only read
				Filters: auth.Filters{
					"#": auth.ReadOnly,
				},
			},
		},
	}
}

func (b *Broker) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return nil
	}

	var err error
	if b.opts.Username == "" {
		err = b.server.AddHook(new(auth.AllowHook), nil)
	} else {
		err = b.server.AddHook(new(auth.Hook), &auth.Options{Ledger: b.ledger()})
	}
	if err != nil {
		return errors.Wrap(err, "add auth hook")
	}
	if err := b.server.AddHook(b.sessions, nil); err != nil {
		return errors.Wrap(err, "add session hook")
	}

	// Create a TCP listener on the configured address.
	tcp := listeners.NewTCP(listeners.Config{ID: "t1", Address: b.opts.Address})
	if err := b.server.AddListener(tcp); err != nil {
		return errors.Wrapf(err, "listen on %s", b.opts.Address)
	}

	go func() {
		if err := b.server.Serve(); err != nil {
			slog.Error("mqtt broker stopped", "error", err)
		}
	}()

	b.started = true
	slog.Info("mqtt broker listening", "address", b.opts.Address)
	return nil
}

// Publish sends payload to topic through the inline client.
func (b *Broker) Publish(topic string, payload []byte) error {
	return b.server.Publish(topic, payload, false, 1)
}

// Sessions is the number of remote clients currently connected.
func (b *Broker) Sessions() int {
	return b.sessions.Count()
}

func (b *Broker) Close() error {
	return b.server.Close()
}
