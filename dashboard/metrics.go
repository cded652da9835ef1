package dashboard

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var steps = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "rigdash",
	Subsystem: "dashboard",
	Name:      "steps_total",
	Help:      "StepCompleted events accepted or rejected by the sequence gate",
}, []string{"result"})
