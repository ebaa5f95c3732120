package ircsock

import (
	"net"
	"sync"
	"time"
)

// RawConnectedCallback is called once the TCP stream is open, before any TLS
// handshake. The addresses are those of the TCP socket (to the proxy when
// relayed), which is what ident lookups need.
type RawConnectedCallback func(local, remote net.Addr)

// ConnectedCallback is called when the transport is fully established.
type ConnectedCallback func()

// ErrorCallback is called for transport errors and buffer overflows.
type ErrorCallback func(err error)

// SocketCloseCallback is called whenever a socket goes away.
type SocketCloseCallback func(hadError bool)

// ReconnectingCallback is called when a reconnect has been scheduled.
type ReconnectingCallback func(attempt int, delay time.Duration)

// CloseCallback is called on terminal close with the triggering error, or nil.
type CloseCallback func(err error)

type callbacks struct {
	mu           sync.RWMutex
	rawConnected RawConnectedCallback
	connected    ConnectedCallback
	err          ErrorCallback
	socketClose  SocketCloseCallback
	reconnecting ReconnectingCallback
	close        CloseCallback
}

// OnRawConnected sets the callback for raw transport establishment.
func (c *Connection) OnRawConnected(callback RawConnectedCallback) {
	c.callbacks.mu.Lock()
	c.callbacks.rawConnected = callback
	c.callbacks.mu.Unlock()
}

// OnConnected sets the callback for connection establishment.
func (c *Connection) OnConnected(callback ConnectedCallback) {
	c.callbacks.mu.Lock()
	c.callbacks.connected = callback
	c.callbacks.mu.Unlock()
}

// OnError sets the callback for transport errors. Errors do not close the
// connection by themselves; a socket close always follows a fatal one.
func (c *Connection) OnError(callback ErrorCallback) {
	c.callbacks.mu.Lock()
	c.callbacks.err = callback
	c.callbacks.mu.Unlock()
}

// OnSocketClose sets the callback for socket closes.
func (c *Connection) OnSocketClose(callback SocketCloseCallback) {
	c.callbacks.mu.Lock()
	c.callbacks.socketClose = callback
	c.callbacks.mu.Unlock()
}

// OnReconnecting sets the callback for scheduled reconnects.
func (c *Connection) OnReconnecting(callback ReconnectingCallback) {
	c.callbacks.mu.Lock()
	c.callbacks.reconnecting = callback
	c.callbacks.mu.Unlock()
}

// OnClose sets the callback for terminal closes.
func (c *Connection) OnClose(callback CloseCallback) {
	c.callbacks.mu.Lock()
	c.callbacks.close = callback
	c.callbacks.mu.Unlock()
}

func (c *Connection) emitRawConnected(local, remote net.Addr) {
	c.events.push(func() {
		c.callbacks.mu.RLock()
		cb := c.callbacks.rawConnected
		c.callbacks.mu.RUnlock()
		if cb != nil {
			cb(local, remote)
		}
	})
}

func (c *Connection) emitConnected() {
	c.events.push(func() {
		c.callbacks.mu.RLock()
		cb := c.callbacks.connected
		c.callbacks.mu.RUnlock()
		if cb != nil {
			cb()
		}
	})
}

func (c *Connection) emitError(err error) {
	c.events.push(func() {
		c.callbacks.mu.RLock()
		cb := c.callbacks.err
		c.callbacks.mu.RUnlock()
		if cb != nil {
			cb(err)
		}
	})
}

func (c *Connection) emitSocketClose(hadError bool) {
	c.events.push(func() {
		c.callbacks.mu.RLock()
		cb := c.callbacks.socketClose
		c.callbacks.mu.RUnlock()
		if cb != nil {
			cb(hadError)
		}
	})
}

func (c *Connection) emitReconnecting(attempt int, delay time.Duration) {
	c.events.push(func() {
		c.callbacks.mu.RLock()
		cb := c.callbacks.reconnecting
		c.callbacks.mu.RUnlock()
		if cb != nil {
			cb(attempt, delay)
		}
	})
}

func (c *Connection) emitClose(err error) {
	c.events.push(func() {
		c.callbacks.mu.RLock()
		cb := c.callbacks.close
		c.callbacks.mu.RUnlock()
		if cb != nil {
			cb(err)
		}
	})
}

// notifier runs callbacks one at a time, in the order they were pushed, on
// its own goroutine. The queue is unbounded so the event loop never waits on
// a slow handler.
type notifier struct {
	mu     sync.Mutex
	queue  []func()
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

func newNotifier() *notifier {
	n := &notifier{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go n.run()
	return n
}

func (n *notifier) push(fn func()) {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.queue = append(n.queue, fn)
	n.mu.Unlock()
	n.signal()
}

// close stops the notifier once everything already queued has run.
func (n *notifier) close() {
	n.mu.Lock()
	n.closed = true
	n.mu.Unlock()
	n.signal()
}

func (n *notifier) signal() {
	select {
	case n.wake <- struct{}{}:
	default:
	}
}

func (n *notifier) run() {
	defer close(n.done)
	for {
		n.mu.Lock()
		if len(n.queue) == 0 {
			closed := n.closed
			n.mu.Unlock()
			if closed {
				return
			}
			<-n.wake
			continue
		}
		fn := n.queue[0]
		n.queue[0] = nil
		n.queue = n.queue[1:]
		n.mu.Unlock()

		fn()
	}
}
