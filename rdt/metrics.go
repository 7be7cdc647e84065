package rdt

import "github.com/prometheus/client_golang/prometheus"

// Metrics is the set of Prometheus collectors published by an RDT client or
// server. It is purely observational: nothing in the transport reads these
// values back, so wiring it in never changes transport behavior (see
// SPEC_FULL.md domain-stack section).
type Metrics struct {
	PacketsSent         prometheus.Counter
	PacketsReceived     prometheus.Counter
	PacketsDropped      prometheus.Counter
	PacketsRetransmitted prometheus.Counter
	CurrentRTOSeconds   prometheus.Gauge
	WindowOccupancy     prometheus.Gauge
}

// NewMetrics registers a fresh set of collectors against reg, prefixing
// every metric name with "rdt_" and labeling them with role ("client" or
// "server").
func NewMetrics(reg prometheus.Registerer, role string) *Metrics {
	labels := prometheus.Labels{"role": role}
	m := &Metrics{
		PacketsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "rdt_packets_sent_total",
			Help:        "Total RDT packets transmitted, including retransmits.",
			ConstLabels: labels,
		}),
		PacketsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "rdt_packets_received_total",
			Help:        "Total RDT packets received off the socket.",
			ConstLabels: labels,
		}),
		PacketsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "rdt_packets_dropped_total",
			Help:        "Total DATA packets silently dropped by the injected-loss server.",
			ConstLabels: labels,
		}),
		PacketsRetransmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "rdt_packets_retransmitted_total",
			Help:        "Total packet retransmissions.",
			ConstLabels: labels,
		}),
		CurrentRTOSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "rdt_rto_seconds",
			Help:        "Current retransmission timeout in seconds.",
			ConstLabels: labels,
		}),
		WindowOccupancy: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "rdt_window_occupancy_bytes",
			Help:        "Bytes currently in flight (nextSeq - base).",
			ConstLabels: labels,
		}),
	}
	if reg != nil {
		reg.MustRegister(m.PacketsSent, m.PacketsReceived, m.PacketsDropped, m.PacketsRetransmitted, m.CurrentRTOSeconds, m.WindowOccupancy)
	}
	return m
}
