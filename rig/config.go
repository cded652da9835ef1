package rig

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"

	"github.com/ilievs/rigdash/core"
)

// ConfigClient reads and writes the rig's configuration record.
// It never retries; a failed call is re-triggered by the operator.
type ConfigClient struct {
	client *Client
}

func NewConfigClient(c *Client) *ConfigClient {
	return &ConfigClient{client: c}
}

func (cc *ConfigClient) Load(ctx context.Context) (core.DeviceConfig, error) {
	var cfg core.DeviceConfig
	err := cc.client.do(ctx, call{method: http.MethodGet, path: configPath}, &cfg)
	requests.WithLabelValues("load", outcome(err)).Inc()
	if err != nil {
		return core.DeviceConfig{}, err
	}
	return cfg, nil
}

// Save sends the whole record. Values outside their ranges are rejected
// before anything goes on the wire.
func (cc *ConfigClient) Save(ctx context.Context, cfg core.DeviceConfig) (core.Ack, error) {
	if err := cfg.Validate(); err != nil {
		requests.WithLabelValues("save", outcome(err)).Inc()
		return nil, err
	}

	payload, err := json.Marshal(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "encode device config")
	}

	var ack core.Ack
	err = cc.client.do(ctx, call{
		method:     http.MethodPost,
		path:       configPath,
		body:       bytes.NewReader(payload),
		rejectable: true,
	}, &ack)
	requests.WithLabelValues("save", outcome(err)).Inc()
	if err != nil {
		return nil, err
	}
	return ack, nil
}
