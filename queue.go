package ircsock

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/ircsock/limits"
	"github.com/opd-ai/ircsock/metrics"
)

type readRequest struct {
	max   int
	reply chan readResult
}

type readResult struct {
	msgs []*Message
	err  error
}

// ReadMessages blocks until at least one message is available and returns at
// most max of them, oldest first. Only one read may wait at a time. When ctx
// ends first the capacity is withdrawn and no message is lost. Once the
// connection has closed for good and nothing is queued, ReadMessages returns
// ErrConnectionClosed.
func (c *Connection) ReadMessages(ctx context.Context, max int) ([]*Message, error) {
	if max <= 0 {
		return nil, nil
	}

	req := &readRequest{max: max, reply: make(chan readResult, 1)}
	if err := c.call(func() error { return c.request(req) }); err != nil {
		if err == ErrDisposed {
			return nil, ErrConnectionClosed
		}
		return nil, err
	}

	select {
	case res := <-req.reply:
		return res.msgs, res.err
	case <-ctx.Done():
		c.call(func() error {
			c.cancelRead(req)
			return nil
		})
		// The loop may have answered before the cancel ran.
		select {
		case res := <-req.reply:
			return res.msgs, res.err
		default:
			return nil, ctx.Err()
		}
	}
}

// ReadMessage returns the next message.
func (c *Connection) ReadMessage(ctx context.Context) (*Message, error) {
	msgs, err := c.ReadMessages(ctx, 1)
	if err != nil {
		return nil, err
	}
	return msgs[0], nil
}

func (c *Connection) request(req *readRequest) error {
	if c.pendingRead != nil {
		return ErrReadInProgress
	}
	c.pendingRead = req
	c.deliver()
	if c.pendingRead != nil && len(c.pendingLines) > 0 {
		c.processPending(false)
	}
	return nil
}

func (c *Connection) cancelRead(req *readRequest) {
	if c.pendingRead == req {
		c.pendingRead = nil
	}
}

// deliver hands queued messages to the waiting reader, if any.
func (c *Connection) deliver() {
	req := c.pendingRead
	if req == nil {
		return
	}

	if len(c.pendingMessages) == 0 {
		if c.readsExhausted() {
			c.pendingRead = nil
			req.reply <- readResult{err: ErrConnectionClosed}
		}
		return
	}

	n := min(req.max, len(c.pendingMessages))
	msgs := make([]*Message, n)
	copy(msgs, c.pendingMessages[:n])
	clear(c.pendingMessages[:n])
	c.pendingMessages = c.pendingMessages[n:]

	c.pendingRead = nil
	c.metrics.RecordPending(c.server, len(c.pendingMessages))
	req.reply <- readResult{msgs: msgs}
}

// readsExhausted reports whether no more messages can ever arrive without a
// new Connect.
func (c *Connection) readsExhausted() bool {
	return (c.state == StateClosed || c.disposed) && len(c.pendingLines) == 0
}

// backpressured reports whether socket reads should pause until the consumer
// catches up.
func (c *Connection) backpressured() bool {
	return len(c.pendingMessages) >= c.opts.QueueHighWater ||
		len(c.pendingLines) >= c.opts.QueueHighWater
}

// handleChunk frames a chunk from the current socket. An overflow destroys
// the socket.
func (c *Connection) handleChunk(data []byte) {
	lines, err := c.framer.Push(data)
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"function":   "handleChunk",
			"held_bytes": c.framer.Held(),
			"chunk_size": len(data),
			"error":      err.Error(),
		}).Error("Buffer overflow, destroying socket")

		c.metrics.RecordOverflow(c.server)
		c.emitError(err)
		c.handleSocketClose(err)
		return
	}
	if len(lines) == 0 {
		return
	}

	c.pendingLines = append(c.pendingLines, lines...)
	c.metrics.RecordLines(c.server, len(lines))
	c.processPending(false)
}

// processPending converts at most limits.LinesPerTurn lines into messages.
// When lines remain it asks the loop for a continuation, which runs only
// after every other ready event has been handled.
func (c *Connection) processPending(continuation bool) {
	if c.draining && !continuation {
		return
	}
	c.draining = true

	for i := 0; i < limits.LinesPerTurn && len(c.pendingLines) > 0; i++ {
		line := c.pendingLines[0]
		c.pendingLines[0] = nil
		c.pendingLines = c.pendingLines[1:]
		c.processLine(line)
	}

	if len(c.pendingLines) > 0 {
		c.continuation = true
		return
	}
	c.draining = false
	c.deliver()
}

func (c *Connection) processLine(line []byte) {
	// Connect always sets a codec before a socket exists.
	codec := c.codec

	text, err := codec.Decode(line)
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"function": "processLine",
			"encoding": codec.Name(),
			"error":    err.Error(),
		}).Debug("Dropping undecodable line")
		c.metrics.RecordDropped(c.server, metrics.ReasonDecode)
		return
	}
	if strings.TrimRight(text, "\r") == "" {
		c.metrics.RecordDropped(c.server, metrics.ReasonEmpty)
		return
	}

	msg, ok := c.parser(text)
	if !ok || msg == nil {
		c.logger.WithFields(logrus.Fields{
			"function": "processLine",
			"line":     text,
		}).Debug("Dropping malformed line")
		c.metrics.RecordDropped(c.server, metrics.ReasonMalformed)
		return
	}

	c.logger.WithFields(logrus.Fields{
		"function": "processLine",
		"command":  msg.Command,
	}).Debug("RX")

	c.pendingMessages = append(c.pendingMessages, msg)
	c.metrics.RecordParsed(c.server)
	c.metrics.RecordPending(c.server, len(c.pendingMessages))
	c.deliver()
}
