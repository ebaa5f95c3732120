// Package metrics exposes Prometheus collectors for IRC connections.
//
// All Record methods are safe to call on a nil *Metrics, so a connection
// built without metrics pays only a nil check.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the collectors shared by every connection registered
// against the same registry. Series are labelled by server address.
type Metrics struct {
	Connected       *prometheus.GaugeVec
	LinesReceived   *prometheus.CounterVec
	MessagesParsed  *prometheus.CounterVec
	LinesDropped    *prometheus.CounterVec
	LinesWritten    *prometheus.CounterVec
	BytesWritten    *prometheus.CounterVec
	BufferOverflows *prometheus.CounterVec
	TransportErrors *prometheus.CounterVec
	Reconnects      *prometheus.CounterVec
	TerminalCloses  *prometheus.CounterVec
	PendingMessages *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg. A nil reg selects
// prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	labels := []string{"server"}
	m := &Metrics{
		Connected: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "ircsock",
				Subsystem: "connection",
				Name:      "connected",
				Help:      "Connection status (0=disconnected, 1=connected)",
			},
			labels,
		),
		LinesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ircsock",
				Subsystem: "lines",
				Name:      "received_total",
				Help:      "Total number of complete lines framed from the socket",
			},
			labels,
		),
		MessagesParsed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ircsock",
				Subsystem: "messages",
				Name:      "parsed_total",
				Help:      "Total number of lines parsed into messages",
			},
			labels,
		),
		LinesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ircsock",
				Subsystem: "lines",
				Name:      "dropped_total",
				Help:      "Total number of lines dropped before delivery",
			},
			[]string{"server", "reason"},
		),
		LinesWritten: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ircsock",
				Subsystem: "lines",
				Name:      "written_total",
				Help:      "Total number of lines queued for writing",
			},
			labels,
		),
		BytesWritten: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ircsock",
				Subsystem: "bytes",
				Name:      "written_total",
				Help:      "Total number of encoded bytes queued for writing",
			},
			labels,
		),
		BufferOverflows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ircsock",
				Subsystem: "framer",
				Name:      "overflows_total",
				Help:      "Total number of sockets destroyed for oversized unterminated lines",
			},
			labels,
		),
		TransportErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ircsock",
				Subsystem: "transport",
				Name:      "errors_total",
				Help:      "Total number of transport errors",
			},
			labels,
		),
		Reconnects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ircsock",
				Subsystem: "connection",
				Name:      "reconnects_total",
				Help:      "Total number of scheduled reconnects",
			},
			labels,
		),
		TerminalCloses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ircsock",
				Subsystem: "connection",
				Name:      "terminal_closes_total",
				Help:      "Total number of closes after which no reconnect was attempted",
			},
			labels,
		),
		PendingMessages: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "ircsock",
				Subsystem: "messages",
				Name:      "pending",
				Help:      "Parsed messages waiting for the consumer",
			},
			labels,
		),
	}

	for _, c := range []prometheus.Collector{
		m.Connected, m.LinesReceived, m.MessagesParsed, m.LinesDropped,
		m.LinesWritten, m.BytesWritten, m.BufferOverflows, m.TransportErrors,
		m.Reconnects, m.TerminalCloses, m.PendingMessages,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Drop reasons for RecordDropped.
const (
	ReasonEmpty     = "empty"
	ReasonMalformed = "malformed"
	ReasonDecode    = "decode"
)

// RecordConnected updates the connection status gauge
func (m *Metrics) RecordConnected(server string, connected bool) {
	if m == nil {
		return
	}
	value := 0.0
	if connected {
		value = 1.0
	}
	m.Connected.WithLabelValues(server).Set(value)
}

// RecordLines adds n framed lines
func (m *Metrics) RecordLines(server string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.LinesReceived.WithLabelValues(server).Add(float64(n))
}

// RecordParsed increments the parsed message counter
func (m *Metrics) RecordParsed(server string) {
	if m == nil {
		return
	}
	m.MessagesParsed.WithLabelValues(server).Inc()
}

// RecordDropped increments the dropped line counter for reason
func (m *Metrics) RecordDropped(server, reason string) {
	if m == nil {
		return
	}
	m.LinesDropped.WithLabelValues(server, reason).Inc()
}

// RecordWrite counts one written line of size bytes
func (m *Metrics) RecordWrite(server string, size int) {
	if m == nil {
		return
	}
	m.LinesWritten.WithLabelValues(server).Inc()
	m.BytesWritten.WithLabelValues(server).Add(float64(size))
}

// RecordOverflow increments the framer overflow counter
func (m *Metrics) RecordOverflow(server string) {
	if m == nil {
		return
	}
	m.BufferOverflows.WithLabelValues(server).Inc()
}

// RecordTransportError increments the transport error counter
func (m *Metrics) RecordTransportError(server string) {
	if m == nil {
		return
	}
	m.TransportErrors.WithLabelValues(server).Inc()
}

// RecordReconnect increments the reconnect counter
func (m *Metrics) RecordReconnect(server string) {
	if m == nil {
		return
	}
	m.Reconnects.WithLabelValues(server).Inc()
}

// RecordTerminalClose increments the terminal close counter
func (m *Metrics) RecordTerminalClose(server string) {
	if m == nil {
		return
	}
	m.TerminalCloses.WithLabelValues(server).Inc()
}

// RecordPending sets the number of messages waiting for the consumer
func (m *Metrics) RecordPending(server string, n int) {
	if m == nil {
		return
	}
	m.PendingMessages.WithLabelValues(server).Set(float64(n))
}
