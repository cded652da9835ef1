package stream

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	frames = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rigdash",
		Subsystem: "stream",
		Name:      "frames_total",
		Help:      "Inbound stream frames by decode result",
	}, []string{"result"})

	sessions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rigdash",
		Subsystem: "stream",
		Name:      "sessions_total",
		Help:      "Stream session transitions: opened, normal or error close",
	}, []string{"cause"})
)
