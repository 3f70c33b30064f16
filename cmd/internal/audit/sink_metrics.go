package audit

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsSink counts events by action and level.
type MetricsSink struct {
	events *prometheus.CounterVec
}

// NewMetricsSink registers warden_auth_events_total on reg.
func NewMetricsSink(reg prometheus.Registerer) (*MetricsSink, error) {
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "warden",
		Subsystem: "auth",
		Name:      "events_total",
		Help:      "Authentication events by action and level.",
	}, []string{"action", "level"})
	if reg != nil {
		if err := reg.Register(events); err != nil {
			return nil, err
		}
	}
	return &MetricsSink{events: events}, nil
}

// Counter exposes the underlying vector for tests and custom collectors.
func (s *MetricsSink) Counter() *prometheus.CounterVec { return s.events }

func (s *MetricsSink) Emit(_ context.Context, e Event) error {
	s.events.WithLabelValues(e.Action, string(e.Level)).Inc()
	return nil
}
