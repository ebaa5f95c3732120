package ircsock

import (
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/opd-ai/ircsock/charset"
	"github.com/opd-ai/ircsock/framer"
	"github.com/opd-ai/ircsock/limits"
	"github.com/opd-ai/ircsock/metrics"
	"github.com/opd-ai/ircsock/transport"
)

// Connection is a resilient transport to one IRC server. It frames the
// incoming byte stream into lines, parses them into messages at the pace the
// consumer reads them, writes outgoing lines, and reconnects after transient
// drops.
//
// All state is owned by a single event-loop goroutine; methods may be called
// from any goroutine, including from callbacks.
type Connection struct {
	opts    Options
	server  string
	dialer  *transport.Dialer
	parser  LineParser
	clock   clock.Clock
	metrics *metrics.Metrics
	logger  *logrus.Entry

	callbacks callbacks
	events    *notifier

	mailbox chan func()
	control chan controlEvent
	reads   chan readEvent
	done    chan struct{}

	// Owned by the event loop.
	state               State
	connected           bool
	requestedDisconnect bool
	disposed            bool
	stopped             bool
	registeredAt        time.Time
	reconnectAttempts   int
	codec               *charset.Codec
	framer              *framer.Framer
	pendingLines        [][]byte
	pendingMessages     []*Message
	pendingRead         *readRequest
	draining            bool
	continuation        bool
	sock                *socket
	generation          uint64
	timers              *timerSet
}

// New creates a Connection. Nothing is opened until Connect is called.
func New(options *Options) (*Connection, error) {
	c, err := newConnection(options)
	if err != nil {
		return nil, err
	}
	go c.run()
	return c, nil
}

// newConnection builds a Connection without starting its event loop.
func newConnection(options *Options) (*Connection, error) {
	if options == nil {
		options = NewOptions()
	}
	opts := options.withDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	dialer, err := transport.NewDialer(opts.transportConfig())
	if err != nil {
		return nil, errors.Join(ErrInvalidOptions, err)
	}

	server := net.JoinHostPort(opts.Host, strconv.Itoa(int(opts.Port)))
	logger := opts.Logger
	if logger == nil {
		logger = logrus.WithField("component", "Connection")
	}
	logger = logger.WithField("server", server)

	c := &Connection{
		opts:    opts,
		server:  server,
		dialer:  dialer,
		parser:  opts.Parser,
		clock:   opts.Clock,
		metrics: opts.Metrics,
		logger:  logger,
		events:  newNotifier(),
		mailbox: make(chan func()),
		control: make(chan controlEvent),
		reads:   make(chan readEvent),
		done:    make(chan struct{}),
		state:   StateIdle,
		framer:  framer.New(limits.MaxFragmentSize),
	}
	c.timers = newTimerSet(c.clock, c.post)

	if opts.Encoding != "" {
		c.setEncoding(opts.Encoding)
	}

	logger.WithFields(logrus.Fields{
		"function": "New",
		"tls":      opts.TLS,
		"proxied":  dialer.Proxied(),
	}).Debug("Connection created")

	return c, nil
}

func (c *Connection) run() {
	defer close(c.done)
	defer c.events.close()

	for !c.stopped {
		reads := c.reads
		if c.backpressured() {
			reads = nil
		}

		if c.continuation {
			select {
			case fn := <-c.mailbox:
				fn()
			case ev := <-c.control:
				c.handleControl(ev)
			case ev := <-reads:
				c.handleRead(ev)
			default:
				c.continuation = false
				c.processPending(true)
			}
			continue
		}

		select {
		case fn := <-c.mailbox:
			fn()
		case ev := <-c.control:
			c.handleControl(ev)
		case ev := <-reads:
			c.handleRead(ev)
		}
	}
}

// call runs fn on the event loop and returns its result.
func (c *Connection) call(fn func() error) error {
	result := make(chan error, 1)
	select {
	case c.mailbox <- func() { result <- fn() }:
	case <-c.done:
		return ErrDisposed
	}
	return <-result
}

// post queues fn on the event loop without waiting for it to run.
func (c *Connection) post(fn func()) bool {
	select {
	case c.mailbox <- fn:
		return true
	case <-c.done:
		return false
	}
}

// Connect opens the transport. Any socket already owned is discarded first,
// and a pending reconnect is cancelled. When no valid encoding has been set,
// UTF-8 is used.
func (c *Connection) Connect() error {
	return c.call(func() error {
		c.requestedDisconnect = false
		c.timers.stopAll()
		if c.codec == nil {
			c.codec = charset.UTF8
		}
		c.open()
		return nil
	})
}

// open starts one connection attempt.
func (c *Connection) open() {
	if err := c.releaseSocket(); err != nil {
		c.logger.WithFields(logrus.Fields{
			"function": "open",
			"error":    err.Error(),
		}).Warn("Closing previous socket failed")
	}
	c.framer.Reset()

	c.generation++
	ctx, cancel := context.WithCancel(context.Background())
	s := newSocket(c.generation, cancel, c.opts.WriteQueueSize)
	c.sock = s
	c.state = StateConnecting

	c.logger.WithFields(logrus.Fields{
		"function":   "open",
		"generation": s.gen,
		"tls":        c.opts.TLS,
		"proxied":    c.dialer.Proxied(),
	}).Info("Connecting")

	go c.dial(ctx, s)
}

func (c *Connection) dial(ctx context.Context, s *socket) {
	raw, err := c.dialer.DialTCP(ctx)
	if err != nil {
		s.sendControl(c.control, controlEvent{kind: controlDialFailed, err: newNetError("dial", c.server, err)})
		return
	}
	if !s.sendControl(c.control, controlEvent{kind: controlRaw, conn: raw}) {
		raw.Close()
		return
	}

	conn, err := c.dialer.Handshake(ctx, raw)
	if err != nil {
		s.sendControl(c.control, controlEvent{kind: controlDialFailed, err: newNetError("handshake", c.server, err)})
		return
	}
	if !s.sendControl(c.control, controlEvent{kind: controlConnected, conn: conn}) {
		conn.Close()
	}
}

func (c *Connection) handleControl(ev controlEvent) {
	s := c.sock
	if s == nil || ev.gen != s.gen {
		if ev.conn != nil {
			ev.conn.Close()
		}
		return
	}

	switch ev.kind {
	case controlRaw:
		s.conn = ev.conn
		c.emitRawConnected(ev.conn.LocalAddr(), ev.conn.RemoteAddr())

	case controlConnected:
		s.conn = ev.conn
		c.connected = true
		c.state = StateConnected
		c.metrics.RecordConnected(c.server, true)

		c.logger.WithFields(logrus.Fields{
			"function":    "handleControl",
			"local_addr":  ev.conn.LocalAddr().String(),
			"remote_addr": ev.conn.RemoteAddr().String(),
		}).Info("Connected")

		go s.readLoop(ev.conn, c.reads)
		go s.writeLoop(ev.conn, c.control)
		c.emitConnected()

	case controlDialFailed:
		c.transportError(ev.err)
		c.handleSocketClose(ev.err)

	case controlWriteFailed:
		err := newNetError("write", c.server, ev.err)
		c.transportError(err)
		c.handleSocketClose(err)
	}
}

func (c *Connection) handleRead(ev readEvent) {
	s := c.sock
	if s == nil || ev.gen != s.gen {
		return
	}

	if !ev.closed {
		c.handleChunk(ev.data)
		return
	}

	var err error
	switch {
	case s.ending:
		// The writer closed the stream after the final line.
	case ev.err == nil || errors.Is(ev.err, io.EOF):
	default:
		err = newNetError("read", c.server, ev.err)
		c.transportError(err)
	}
	c.handleSocketClose(err)
}

func (c *Connection) transportError(err error) {
	c.logger.WithFields(logrus.Fields{
		"function": "transportError",
		"error":    err.Error(),
	}).Warn("Transport error")
	c.metrics.RecordTransportError(c.server)
	c.emitError(err)
}

// releaseSocket drops the current socket without running close handling.
func (c *Connection) releaseSocket() error {
	c.connected = false
	s := c.sock
	if s == nil {
		return nil
	}
	c.sock = nil
	return s.release()
}

// Write sends one line. CRLF is appended; the line itself must not contain
// CR or LF. Lines are written in call order.
func (c *Connection) Write(line string) error {
	if err := limits.ValidateOutgoingLine(line); err != nil {
		return err
	}

	return c.call(func() error {
		if c.codec == nil {
			return ErrEncodingUnset
		}
		s := c.sock
		if s == nil || !c.connected || s.ending {
			return ErrNotConnected
		}

		data, err := c.encodeLine(line)
		if err != nil {
			return err
		}
		if !s.enqueue(writeItem{data: data}) {
			return ErrBufferFull
		}

		c.metrics.RecordWrite(c.server, len(data))
		c.logger.WithFields(logrus.Fields{
			"function": "Write",
			"size":     len(data),
		}).Debug("TX")
		return nil
	})
}

func (c *Connection) encodeLine(line string) ([]byte, error) {
	data, err := c.codec.Encode(line)
	if err != nil {
		return nil, err
	}
	return append(data, '\r', '\n'), nil
}

// End closes the connection on request; no reconnect follows. When connected
// and finalLine is not empty, the line is written first and the stream closes
// once it has been sent. Otherwise the socket is destroyed immediately.
func (c *Connection) End(finalLine string) error {
	if finalLine != "" {
		if err := limits.ValidateOutgoingLine(finalLine); err != nil {
			return err
		}
	}
	return c.call(func() error {
		return c.end(finalLine)
	})
}

// end returns an error when finalLine could not be queued; the socket is
// destroyed regardless.
func (c *Connection) end(finalLine string) error {
	c.requestedDisconnect = true

	s := c.sock
	if s == nil {
		if c.state == StateReconnecting {
			c.closeTerminal(nil)
		}
		return nil
	}
	if s.ending {
		return nil
	}

	var err error
	if c.connected && finalLine != "" && c.codec != nil {
		var data []byte
		data, err = c.encodeLine(finalLine)
		if err == nil {
			if s.enqueue(writeItem{data: data, closeAfter: true}) {
				s.ending = true
				c.metrics.RecordWrite(c.server, len(data))
				return nil
			}
			err = ErrBufferFull
		}
		c.logger.WithFields(logrus.Fields{
			"function": "end",
			"error":    err.Error(),
		}).Warn("Final line not sent")
	}
	c.handleSocketClose(nil)
	return err
}

// Dispose releases the Connection permanently. A connected socket is ended
// cleanly first, which still reports OnSocketClose and OnClose. A final line
// queued by End is sent before the stream closes.
func (c *Connection) Dispose() error {
	err := c.call(func() error {
		c.disposed = true
		switch {
		case c.sock != nil && c.sock.ending:
			// closeTerminal shuts down once the writer has closed the stream.
			return nil
		case c.connected:
			c.end("")
			return nil
		}
		return c.shutdown()
	})
	if errors.Is(err, ErrDisposed) {
		return nil
	}
	<-c.done
	return err
}

// shutdown releases the socket and every timer and stops the event loop.
func (c *Connection) shutdown() error {
	var err error
	err = multierr.Append(err, c.releaseSocket())
	c.timers.stopAll()
	c.continuation = false
	c.draining = false
	c.pendingLines = nil
	if c.state != StateIdle {
		c.state = StateClosed
	}
	c.stopped = true
	c.deliver()

	c.logger.WithField("function", "shutdown").Debug("Connection disposed")
	return err
}

// SetEncoding switches the character encoding. Only encodings that encode
// ASCII unchanged are accepted; otherwise the current encoding is kept and
// false is returned.
func (c *Connection) SetEncoding(name string) bool {
	var ok bool
	c.call(func() error {
		ok = c.setEncoding(name)
		return nil
	})
	return ok
}

func (c *Connection) setEncoding(name string) bool {
	codec, err := charset.Validate(name)
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"function": "setEncoding",
			"encoding": name,
			"error":    err.Error(),
		}).Warn("Rejected encoding")
		return false
	}
	c.codec = codec
	return true
}

// Encoding returns the name of the active encoding, or "" when none is set.
func (c *Connection) Encoding() string {
	var name string
	c.call(func() error {
		if c.codec != nil {
			name = c.codec.Name()
		}
		return nil
	})
	return name
}

// MarkRegistered records that the server accepted the client's registration.
// A drop more than the registration grace period later is retried.
func (c *Connection) MarkRegistered() {
	c.call(func() error {
		c.registeredAt = c.clock.Now()
		return nil
	})
}

// RegisteredAt returns when MarkRegistered was called on the current socket,
// or the zero time. Every socket close clears it.
func (c *Connection) RegisteredAt() time.Time {
	var t time.Time
	c.call(func() error {
		t = c.registeredAt
		return nil
	})
	return t
}

// IsConnected reports whether the transport is established.
func (c *Connection) IsConnected() bool {
	var connected bool
	c.call(func() error {
		connected = c.connected
		return nil
	})
	return connected
}

// State returns the lifecycle state.
func (c *Connection) State() State {
	state := StateClosed
	c.call(func() error {
		state = c.state
		return nil
	})
	return state
}

// ReconnectAttempts returns the number of reconnects in the current retry
// sequence.
func (c *Connection) ReconnectAttempts() int {
	var n int
	c.call(func() error {
		n = c.reconnectAttempts
		return nil
	})
	return n
}

// Server returns the host:port this Connection reaches.
func (c *Connection) Server() string {
	return c.server
}
