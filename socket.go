package ircsock

import (
	"context"
	"errors"
	"net"
)

const readBufferSize = 4096

type controlKind int

const (
	controlRaw controlKind = iota
	controlConnected
	controlDialFailed
	controlWriteFailed
)

// controlEvent reports dial progress and write failures to the event loop.
type controlEvent struct {
	kind controlKind
	gen  uint64
	conn net.Conn
	err  error
}

// readEvent carries either a chunk or the end of the stream. Both travel on
// the same channel so the close is never seen before earlier data.
type readEvent struct {
	gen    uint64
	data   []byte
	closed bool
	err    error
}

type writeItem struct {
	data       []byte
	closeAfter bool
}

// socket is one transport attempt. Its goroutines exit when done is closed.
type socket struct {
	gen      uint64
	conn     net.Conn
	cancel   context.CancelFunc
	done     chan struct{}
	outbound chan writeItem

	// ending is set once a final line has been queued; the writer closes the
	// stream after it, and the resulting read error is a clean close.
	ending bool
}

func newSocket(gen uint64, cancel context.CancelFunc, queueSize int) *socket {
	return &socket{
		gen:      gen,
		cancel:   cancel,
		done:     make(chan struct{}),
		outbound: make(chan writeItem, queueSize),
	}
}

func (s *socket) enqueue(item writeItem) bool {
	select {
	case s.outbound <- item:
		return true
	default:
		return false
	}
}

func (s *socket) sendControl(out chan<- controlEvent, ev controlEvent) bool {
	ev.gen = s.gen
	select {
	case out <- ev:
		return true
	case <-s.done:
		return false
	}
}

func (s *socket) sendRead(out chan<- readEvent, ev readEvent) bool {
	ev.gen = s.gen
	select {
	case out <- ev:
		return true
	case <-s.done:
		return false
	}
}

func (s *socket) readLoop(conn net.Conn, out chan<- readEvent) {
	buf := make([]byte, readBufferSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if !s.sendRead(out, readEvent{data: chunk}) {
				return
			}
		}
		if err != nil {
			s.sendRead(out, readEvent{closed: true, err: err})
			return
		}
	}
}

func (s *socket) writeLoop(conn net.Conn, control chan<- controlEvent) {
	for {
		select {
		case item := <-s.outbound:
			if _, err := conn.Write(item.data); err != nil {
				s.sendControl(control, controlEvent{kind: controlWriteFailed, err: err})
				return
			}
			if item.closeAfter {
				conn.Close()
				return
			}
		case <-s.done:
			return
		}
	}
}

// release stops the socket's goroutines and closes the stream.
func (s *socket) release() error {
	s.cancel()
	close(s.done)
	if s.conn == nil {
		return nil
	}
	if err := s.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}
