package transport

import (
	"bufio"
	"encoding/binary"
	"io"
	"net"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// startLineServer accepts connections, sends greeting and echoes every line back.
func startLineServer(t *testing.T, greeting string) *net.TCPAddr {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				io.WriteString(c, greeting)
				sc := bufio.NewScanner(c)
				for sc.Scan() {
					io.WriteString(c, sc.Text()+"\n")
				}
			}(conn)
		}
	}()

	return ln.Addr().(*net.TCPAddr)
}

func splitAddr(t *testing.T, addr net.Addr) (string, uint16) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr.String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, uint16(port)
}

// socks5Server is a minimal RFC 1928/1929 CONNECT-only proxy that relays
// every request to backend and records the requested targets.
type socks5Server struct {
	addr     net.Addr
	backend  string
	user     string
	password string

	mu      sync.Mutex
	targets []string
}

func startSOCKS5Server(t *testing.T, backend net.Addr, user, password string) *socks5Server {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	s := &socks5Server{addr: ln.Addr(), backend: backend.String(), user: user, password: password}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go s.handle(conn)
		}
	}()
	return s
}

func (s *socks5Server) Targets() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.targets...)
}

func (s *socks5Server) handle(c net.Conn) {
	defer c.Close()

	hdr := make([]byte, 2)
	if _, err := io.ReadFull(c, hdr); err != nil {
		return
	}
	methods := make([]byte, hdr[1])
	if _, err := io.ReadFull(c, methods); err != nil {
		return
	}

	if s.user != "" {
		c.Write([]byte{5, 2})
		if !s.authenticate(c) {
			c.Write([]byte{1, 1})
			return
		}
		c.Write([]byte{1, 0})
	} else {
		c.Write([]byte{5, 0})
	}

	req := make([]byte, 4)
	if _, err := io.ReadFull(c, req); err != nil {
		return
	}

	var host string
	switch req[3] {
	case 1:
		ip := make([]byte, 4)
		io.ReadFull(c, ip)
		host = net.IP(ip).String()
	case 3:
		n := make([]byte, 1)
		io.ReadFull(c, n)
		name := make([]byte, n[0])
		io.ReadFull(c, name)
		host = string(name)
	case 4:
		ip := make([]byte, 16)
		io.ReadFull(c, ip)
		host = net.IP(ip).String()
	default:
		return
	}
	portBytes := make([]byte, 2)
	if _, err := io.ReadFull(c, portBytes); err != nil {
		return
	}
	port := binary.BigEndian.Uint16(portBytes)

	s.mu.Lock()
	s.targets = append(s.targets, net.JoinHostPort(host, strconv.Itoa(int(port))))
	s.mu.Unlock()

	up, err := net.Dial("tcp", s.backend)
	if err != nil {
		c.Write([]byte{5, 5, 0, 1, 0, 0, 0, 0, 0, 0})
		return
	}
	defer up.Close()

	c.Write([]byte{5, 0, 0, 1, 0, 0, 0, 0, 0, 0})
	go io.Copy(up, c)
	io.Copy(c, up)
}

func (s *socks5Server) authenticate(c net.Conn) bool {
	b := make([]byte, 2)
	if _, err := io.ReadFull(c, b); err != nil {
		return false
	}
	user := make([]byte, b[1])
	io.ReadFull(c, user)
	n := make([]byte, 1)
	io.ReadFull(c, n)
	pass := make([]byte, n[0])
	io.ReadFull(c, pass)
	return string(user) == s.user && string(pass) == s.password
}
