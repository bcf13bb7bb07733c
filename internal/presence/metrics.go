package presence

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var gateEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "campuspro_gate_events_total",
	Help: "Gate events by event type and outcome.",
}, []string{"event_type", "outcome"})
