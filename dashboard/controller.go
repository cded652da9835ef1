package dashboard

import (
	"context"

	"github.com/ilievs/rigdash/core"
)

type ConfigAPI interface {
	Load(ctx context.Context) (core.DeviceConfig, error)
	Save(ctx context.Context, cfg core.DeviceConfig) (core.Ack, error)
}

type CommandAPI interface {
	Dispatch(ctx context.Context, cmd core.Command) core.CommandResult
}

// Controller runs operator requests and folds their outcomes into the Store
// as they complete. Calls may overlap; whichever finishes last wins.
type Controller struct {
	store    *Store
	config   ConfigAPI
	commands CommandAPI
}

func NewController(store *Store, config ConfigAPI, commands CommandAPI) *Controller {
	return &Controller{store: store, config: config, commands: commands}
}

func (c *Controller) Store() *Store {
	return c.store
}

func (c *Controller) LoadConfig(ctx context.Context) (core.DeviceConfig, error) {
	cfg, err := c.config.Load(ctx)
	if err != nil {
		c.store.Apply(ConfigFailed{Op: OpLoad, Err: err})
		return core.DeviceConfig{}, err
	}
	c.store.Apply(ConfigLoaded{Config: cfg})
	return cfg, nil
}

func (c *Controller) SaveConfig(ctx context.Context, cfg core.DeviceConfig) (core.Ack, error) {
	ack, err := c.config.Save(ctx, cfg)
	if err != nil {
		c.store.Apply(ConfigFailed{Op: OpSave, Err: err})
		return nil, err
	}
	c.store.Apply(ConfigSaved{Config: cfg, Ack: ack})
	return ack, nil
}

func (c *Controller) Dispatch(ctx context.Context, cmd core.Command) core.CommandResult {
	res := c.commands.Dispatch(ctx, cmd)
	c.store.Apply(CommandCompleted{Result: res})
	return res
}

// HandleEvent is the stream subscriber.
func (c *Controller) HandleEvent(ev core.Event) {
	c.store.Apply(ev)
}
