package ircsock

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
)

const testTimeout = 5 * time.Second

// testServer accepts connections on a loopback port and hands them to the test.
type testServer struct {
	ln    net.Listener
	conns chan net.Conn

	mu       sync.Mutex
	accepted []net.Conn
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &testServer{ln: ln, conns: make(chan net.Conn, 16)}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			s.mu.Lock()
			s.accepted = append(s.accepted, conn)
			s.mu.Unlock()
			s.conns <- conn
		}
	}()

	t.Cleanup(func() {
		ln.Close()
		s.mu.Lock()
		defer s.mu.Unlock()
		for _, c := range s.accepted {
			c.Close()
		}
	})
	return s
}

func (s *testServer) port() uint16 {
	return uint16(s.ln.Addr().(*net.TCPAddr).Port)
}

func (s *testServer) accept(t *testing.T) net.Conn {
	t.Helper()
	select {
	case conn := <-s.conns:
		return conn
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for a connection")
		return nil
	}
}

// assertNoAccept fails if a connection arrives within d.
func (s *testServer) assertNoAccept(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case <-s.conns:
		t.Fatal("unexpected connection")
	case <-time.After(d):
	}
}

// reset closes conn with an RST so the peer sees a read error.
func reset(t *testing.T, conn net.Conn) {
	t.Helper()
	tcp, ok := conn.(*net.TCPConn)
	require.True(t, ok)
	require.NoError(t, tcp.SetLinger(0))
	require.NoError(t, tcp.Close())
}

func testOptions(s *testServer) (*Options, *clock.Mock) {
	mock := clock.NewMock()
	opts := NewOptions()
	opts.Host = "127.0.0.1"
	opts.Port = s.port()
	opts.DialTimeout = testTimeout
	opts.Clock = mock
	return opts, mock
}

func newTestConnection(t *testing.T, opts *Options) *Connection {
	t.Helper()
	conn, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Dispose() })
	return conn
}

// recorder captures notifications in the order they are dispatched.
type recorder struct {
	mu     sync.Mutex
	events []string

	rawConnected chan net.Addr
	connected    chan struct{}
	errs         chan error
	socketCloses chan bool
	reconnecting chan int
	delays       chan time.Duration
	closes       chan error
}

func record(c *Connection) *recorder {
	r := &recorder{
		rawConnected: make(chan net.Addr, 16),
		connected:    make(chan struct{}, 16),
		errs:         make(chan error, 16),
		socketCloses: make(chan bool, 16),
		reconnecting: make(chan int, 16),
		delays:       make(chan time.Duration, 16),
		closes:       make(chan error, 16),
	}
	c.OnRawConnected(func(local, remote net.Addr) {
		r.add("raw")
		r.rawConnected <- remote
	})
	c.OnConnected(func() {
		r.add("connected")
		r.connected <- struct{}{}
	})
	c.OnError(func(err error) {
		r.add("error")
		r.errs <- err
	})
	c.OnSocketClose(func(hadError bool) {
		r.add("socket_close")
		r.socketCloses <- hadError
	})
	c.OnReconnecting(func(attempt int, delay time.Duration) {
		r.add("reconnecting")
		r.reconnecting <- attempt
		r.delays <- delay
	})
	c.OnClose(func(err error) {
		r.add("close")
		r.closes <- err
	})
	return r
}

func (r *recorder) add(event string) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for event")
		var zero T
		return zero
	}
}

func assertNone[T any](t *testing.T, ch <-chan T, d time.Duration) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("unexpected event: %v", v)
	case <-time.After(d):
	}
}
