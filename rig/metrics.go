package rig

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ilievs/rigdash/core"
)

var requests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "rigdash",
	Subsystem: "rig",
	Name:      "requests_total",
	Help:      "Requests sent to the rig by operation and outcome",
}, []string{"op", "outcome"})

func outcome(err error) string {
	var verr *core.ValidationError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &verr):
		return "rejected"
	default:
		return "transport_error"
	}
}
