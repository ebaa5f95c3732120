package transport

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/proxy"
)

// ProxyType selects the relay protocol used to reach the IRC server.
type ProxyType string

const (
	// ProxyTypeSOCKS5 relays through a SOCKS5 proxy (RFC 1928).
	ProxyTypeSOCKS5 ProxyType = "socks5"
	// ProxyTypeHTTP relays through an HTTP proxy using CONNECT.
	ProxyTypeHTTP ProxyType = "http"
)

// ProxyConfig contains configuration for proxy connections.
type ProxyConfig struct {
	Type     ProxyType
	Host     string
	Port     uint16
	Username string
	Password string
}

// Addr returns the proxy's host:port.
func (c *ProxyConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(int(c.Port)))
}

// newProxyDialer builds the dialer that tunnels TCP connections through the
// configured proxy. forward is used to reach the proxy itself, which lets the
// local bind address apply to the proxy hop.
func newProxyDialer(config *ProxyConfig, forward *net.Dialer) (proxy.ContextDialer, error) {
	if config == nil {
		return nil, fmt.Errorf("proxy config cannot be nil")
	}
	if config.Host == "" || config.Port == 0 {
		return nil, fmt.Errorf("%w: proxy host and port are required", ErrInvalidConfig)
	}

	proxyAddr := config.Addr()

	logrus.WithFields(logrus.Fields{
		"function":   "newProxyDialer",
		"proxy_type": config.Type,
		"proxy_addr": proxyAddr,
	}).Debug("Creating proxy dialer")

	switch config.Type {
	case ProxyTypeSOCKS5:
		var auth *proxy.Auth
		if config.Username != "" || config.Password != "" {
			auth = &proxy.Auth{
				User:     config.Username,
				Password: config.Password,
			}
		}

		dialer, err := proxy.SOCKS5("tcp", proxyAddr, auth, forward)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function":   "newProxyDialer",
				"proxy_type": config.Type,
				"proxy_addr": proxyAddr,
				"error":      err.Error(),
			}).Error("Failed to create SOCKS5 dialer")
			return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
		}

		contextDialer, ok := dialer.(proxy.ContextDialer)
		if !ok {
			return nil, fmt.Errorf("SOCKS5 dialer does not support contexts")
		}
		return contextDialer, nil

	case ProxyTypeHTTP:
		var userInfo *url.Userinfo
		if config.Username != "" {
			if config.Password != "" {
				userInfo = url.UserPassword(config.Username, config.Password)
			} else {
				userInfo = url.User(config.Username)
			}
		}

		return &httpProxyDialer{
			proxyURL: &url.URL{Scheme: "http", Host: proxyAddr, User: userInfo},
			forward:  forward,
		}, nil

	default:
		return nil, fmt.Errorf("%w: unsupported proxy type %q (must be 'socks5' or 'http')", ErrInvalidConfig, config.Type)
	}
}

// httpProxyDialer implements proxy.ContextDialer for HTTP CONNECT proxies.
type httpProxyDialer struct {
	proxyURL *url.URL
	forward  *net.Dialer
}

// Dial connects to the address via HTTP CONNECT proxy.
func (d *httpProxyDialer) Dial(network, addr string) (net.Conn, error) {
	return d.DialContext(context.Background(), network, addr)
}

// DialContext connects to the address via HTTP CONNECT proxy. The context
// bounds both the proxy dial and the CONNECT exchange.
func (d *httpProxyDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	if network != "tcp" {
		return nil, fmt.Errorf("HTTP CONNECT proxy only supports TCP, got: %s", network)
	}

	proxyConn, err := d.forward.DialContext(ctx, "tcp", d.proxyURL.Host)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to proxy: %w", err)
	}

	stop := context.AfterFunc(ctx, func() {
		proxyConn.Close()
	})
	defer stop()

	connectReq := &http.Request{
		Method: "CONNECT",
		URL:    &url.URL{Opaque: addr},
		Host:   addr,
		Header: make(http.Header),
	}

	if d.proxyURL.User != nil {
		username := d.proxyURL.User.Username()
		password, _ := d.proxyURL.User.Password()
		connectReq.SetBasicAuth(username, password)
		connectReq.Header.Set("Proxy-Authorization", connectReq.Header.Get("Authorization"))
		connectReq.Header.Del("Authorization")
	}

	if err := connectReq.Write(proxyConn); err != nil {
		proxyConn.Close()
		return nil, fmt.Errorf("failed to write CONNECT request: %w", err)
	}

	br := bufio.NewReader(proxyConn)
	resp, err := http.ReadResponse(br, connectReq)
	if err != nil {
		proxyConn.Close()
		return nil, fmt.Errorf("failed to read CONNECT response: %w", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		proxyConn.Close()
		return nil, fmt.Errorf("proxy returned non-200 status: %s", resp.Status)
	}

	if br.Buffered() > 0 {
		// The server spoke first; keep what the reader already pulled in.
		return &bufferedConn{Conn: proxyConn, r: br}, nil
	}
	return proxyConn, nil
}

// bufferedConn serves reads from a bufio.Reader that may already hold bytes
// read past the CONNECT response.
type bufferedConn struct {
	net.Conn
	r *bufio.Reader
}

func (c *bufferedConn) Read(b []byte) (int, error) {
	return c.r.Read(b)
}
