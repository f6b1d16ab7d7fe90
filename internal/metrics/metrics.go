// Package metrics exposes node counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/notnil/vescnode/vesc"
)

// NewRegistry returns a registry with the Go and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves reg in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// NodeMetrics implements vesc.Metrics.
type NodeMetrics struct {
	FramesReceived *prometheus.CounterVec // labels: cmd
	FramesDropped  *prometheus.CounterVec // labels: reason
	RepliesSent    *prometheus.CounterVec // labels: cmd
	WatchdogTrips  prometheus.Counter
	QueueOverflow  prometheus.Counter
	MotorEnabled   prometheus.Gauge
}

var _ vesc.Metrics = (*NodeMetrics)(nil)

// NewNodeMetrics registers the node metrics on reg.
func NewNodeMetrics(reg prometheus.Registerer) *NodeMetrics {
	m := &NodeMetrics{
		FramesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vesc_frames_received_total",
			Help: "Frames addressed to the node, by command.",
		}, []string{"cmd"}),
		FramesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vesc_frames_dropped_total",
			Help: "Frames ignored by the node, by reason.",
		}, []string{"reason"}),
		RepliesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vesc_replies_sent_total",
			Help: "Reply frames written, by command.",
		}, []string{"cmd"}),
		WatchdogTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vesc_watchdog_trips_total",
			Help: "Times the comms watchdog disabled the motor.",
		}),
		QueueOverflow: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "canbus_queue_overflow_total",
			Help: "Received frames discarded on a full transport queue.",
		}),
		MotorEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vesc_motor_enabled",
			Help: "1 while the motor is enabled.",
		}),
	}
	reg.MustRegister(m.FramesReceived, m.FramesDropped, m.RepliesSent, m.WatchdogTrips, m.QueueOverflow, m.MotorEnabled)
	return m
}

func (m *NodeMetrics) FrameReceived(cmd vesc.Command) {
	m.FramesReceived.WithLabelValues(cmd.String()).Inc()
}

func (m *NodeMetrics) FrameDropped(reason string) {
	m.FramesDropped.WithLabelValues(reason).Inc()
}

func (m *NodeMetrics) ReplySent(cmd vesc.Command) {
	m.RepliesSent.WithLabelValues(cmd.String()).Inc()
}

func (m *NodeMetrics) WatchdogTripped() { m.WatchdogTrips.Inc() }

// SetMotorEnabled records the motor state.
func (m *NodeMetrics) SetMotorEnabled(on bool) {
	if on {
		m.MotorEnabled.Set(1)
	} else {
		m.MotorEnabled.Set(0)
	}
}
