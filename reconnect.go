package ircsock

import (
	"time"

	"github.com/sirupsen/logrus"
)

// State is the lifecycle state of a Connection.
type State int

const (
	// StateIdle means Connect has never been called.
	StateIdle State = iota
	// StateConnecting means a socket is being opened.
	StateConnecting
	// StateConnected means the transport is established.
	StateConnected
	// StateClosed means the connection closed for good. Connect may start a
	// new cycle unless the Connection was disposed.
	StateClosed
	// StateReconnecting means the socket closed and a reconnect is scheduled.
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// shouldReconnect decides what follows an unrequested socket close. A retry
// sequence already under way continues until max attempts; otherwise only a
// connection that was up and registered for longer than the grace period is
// worth retrying. Callers restart attempts at 0 after such a connection.
func shouldReconnect(attempts, max int, wasConnected, safelyRegistered bool) bool {
	if attempts > 0 && attempts < max {
		return true
	}
	return wasConnected && safelyRegistered
}

// handleSocketClose runs the close handling for the current socket. err is nil
// for clean closes.
func (c *Connection) handleSocketClose(err error) {
	wasConnected := c.connected
	safelyRegistered := !c.registeredAt.IsZero() &&
		c.clock.Since(c.registeredAt) > c.opts.RegistrationGrace
	// A registration belongs to the socket it was made on.
	c.registeredAt = time.Time{}

	c.releaseSocket()
	c.timers.stopAll()
	c.metrics.RecordConnected(c.server, false)
	c.emitSocketClose(err != nil)

	logger := c.logger.WithFields(logrus.Fields{
		"function":          "handleSocketClose",
		"was_connected":     wasConnected,
		"safely_registered": safelyRegistered,
		"attempts":          c.reconnectAttempts,
	})
	if err != nil {
		logger = logger.WithError(err)
	}
	logger.Info("Socket closed")

	if !c.opts.AutoReconnect || c.requestedDisconnect {
		c.closeTerminal(err)
		return
	}

	if wasConnected && safelyRegistered {
		// The session recovered, so a new retry sequence starts.
		c.reconnectAttempts = 0
	}
	if shouldReconnect(c.reconnectAttempts, c.opts.MaxReconnectAttempts, wasConnected, safelyRegistered) {
		c.scheduleReconnect()
		return
	}
	c.closeTerminal(err)
}

func (c *Connection) scheduleReconnect() {
	c.reconnectAttempts++
	c.state = StateReconnecting
	delay := c.opts.ReconnectDelay

	c.timers.afterFunc(delay, func() {
		c.logger.WithFields(logrus.Fields{
			"function": "scheduleReconnect",
			"attempt":  c.reconnectAttempts,
		}).Info("Reconnecting")
		c.open()
	})
	c.metrics.RecordReconnect(c.server)

	c.logger.WithFields(logrus.Fields{
		"function": "scheduleReconnect",
		"attempt":  c.reconnectAttempts,
		"delay":    delay,
	}).Info("Scheduled reconnect")

	c.emitReconnecting(c.reconnectAttempts, delay)
}

// closeTerminal ends the current cycle. Messages already queued stay readable.
func (c *Connection) closeTerminal(err error) {
	c.reconnectAttempts = 0
	c.state = StateClosed
	c.timers.stopAll()
	c.metrics.RecordTerminalClose(c.server)

	c.logger.WithFields(logrus.Fields{
		"function": "closeTerminal",
		"error":    err,
	}).Info("Connection closed")

	c.emitClose(err)
	c.deliver()

	if c.disposed {
		c.shutdown()
	}
}
