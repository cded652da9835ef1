package rig

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ilievs/rigdash/core"
)

const requestIDHeader = "X-Request-ID"

// CommandDispatcher posts lifecycle commands. Every call is independent:
// nothing is queued and repeated commands are all sent.
type CommandDispatcher struct {
	client *Client
	now    func() time.Time
}

func NewCommandDispatcher(c *Client) *CommandDispatcher {
	return &CommandDispatcher{client: c, now: time.Now}
}

// Dispatch never fails outright; transport problems are carried in the result.
func (d *CommandDispatcher) Dispatch(ctx context.Context, cmd core.Command) core.CommandResult {
	res := core.CommandResult{
		ID:       uuid.NewString(),
		Command:  cmd,
		IssuedAt: d.now(),
	}

	header := http.Header{}
	header.Set(requestIDHeader, res.ID)

	var ack core.Ack
	err := d.client.do(ctx, call{method: http.MethodPost, path: "/" + string(cmd), header: header}, &ack)
	requests.WithLabelValues(string(cmd), outcome(err)).Inc()

	res.CompletedAt = d.now()
	if err != nil {
		res.Err = err
		return res
	}
	res.Ack = ack
	return res
}
