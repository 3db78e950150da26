package simwire

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors updated by connections and
// demultiplexers. A nil *Metrics is valid and records nothing.
type Metrics struct {
	framesIn     prometheus.Counter
	framesOut    prometheus.Counter
	bytesIn      prometheus.Counter
	bytesOut     prometheus.Counter
	streamErrors prometheus.Counter
	connections  prometheus.Gauge
}

// NewMetrics creates the collectors under namespace and registers them
// with reg.
func NewMetrics(reg prometheus.Registerer, namespace string) (*Metrics, error) {
	m := &Metrics{
		framesIn: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Frames assembled and decoded from peers.",
		}),
		framesOut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_sent_total",
			Help:      "Frames written to peers.",
		}),
		bytesIn: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_received_total",
			Help:      "Raw bytes fed to frame assemblers.",
		}),
		bytesOut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_sent_total",
			Help:      "Raw bytes written to peers.",
		}),
		streamErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_errors_total",
			Help:      "Connections dropped because their byte stream was corrupt.",
		}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Connections currently running.",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.framesIn, m.framesOut, m.bytesIn, m.bytesOut, m.streamErrors, m.connections,
	} {
		if err := reg.Register(c); err != nil {
			return nil, errors.Wrap(err, "register metrics")
		}
	}

	return m, nil
}

func (m *Metrics) received(bytes, frames int) {
	if m == nil {
		return
	}
	m.bytesIn.Add(float64(bytes))
	m.framesIn.Add(float64(frames))
}

func (m *Metrics) sent(bytes int) {
	if m == nil {
		return
	}
	m.bytesOut.Add(float64(bytes))
	m.framesOut.Inc()
}

func (m *Metrics) streamError() {
	if m == nil {
		return
	}
	m.streamErrors.Inc()
}

func (m *Metrics) connOpened() {
	if m == nil {
		return
	}
	m.connections.Inc()
}

func (m *Metrics) connClosed() {
	if m == nil {
		return
	}
	m.connections.Dec()
}
