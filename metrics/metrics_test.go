package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.RecordConnected("irc.test:6697", true)
	m.RecordDropped("irc.test:6697", ReasonMalformed)

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	assert.True(t, names["ircsock_connection_connected"])
	assert.True(t, names["ircsock_lines_dropped_total"])
}

func TestNewTwiceOnSameRegistryFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)

	_, err = New(reg)
	assert.Error(t, err)
}

func TestRecorders(t *testing.T) {
	m, err := New(prometheus.NewRegistry())
	require.NoError(t, err)
	server := "irc.test:6667"

	m.RecordConnected(server, true)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Connected.WithLabelValues(server)))
	m.RecordConnected(server, false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Connected.WithLabelValues(server)))

	m.RecordLines(server, 3)
	m.RecordLines(server, 0)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.LinesReceived.WithLabelValues(server)))

	m.RecordParsed(server)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessagesParsed.WithLabelValues(server)))

	m.RecordWrite(server, 10)
	m.RecordWrite(server, 5)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.LinesWritten.WithLabelValues(server)))
	assert.Equal(t, 15.0, testutil.ToFloat64(m.BytesWritten.WithLabelValues(server)))

	m.RecordOverflow(server)
	m.RecordTransportError(server)
	m.RecordReconnect(server)
	m.RecordTerminalClose(server)
	m.RecordPending(server, 7)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BufferOverflows.WithLabelValues(server)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TransportErrors.WithLabelValues(server)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Reconnects.WithLabelValues(server)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TerminalCloses.WithLabelValues(server)))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.PendingMessages.WithLabelValues(server)))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordConnected("s", true)
		m.RecordLines("s", 1)
		m.RecordParsed("s")
		m.RecordDropped("s", ReasonEmpty)
		m.RecordWrite("s", 1)
		m.RecordOverflow("s")
		m.RecordTransportError("s")
		m.RecordReconnect("s")
		m.RecordTerminalClose("s")
		m.RecordPending("s", 1)
	})
}
