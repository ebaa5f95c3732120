package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/proxy"
)

// Config describes how to reach one IRC server.
type Config struct {
	Host string
	Port uint16

	// TLS wraps the TCP stream (direct or proxied) in TLS.
	TLS bool
	// InsecureSkipVerify disables certificate validation.
	InsecureSkipVerify bool
	// ServerName overrides the name used for SNI and verification.
	ServerName string
	// TLSConfig, when set, is cloned and used as the base TLS configuration.
	TLSConfig *tls.Config

	// LocalAddress is an optional source IP to bind outgoing connections to.
	LocalAddress string

	// Proxy relays the connection when set.
	Proxy *ProxyConfig

	// Timeout bounds the TCP dial (including the proxy exchange) and, separately,
	// the TLS handshake. Zero means no timeout beyond the context.
	Timeout time.Duration

	// Resolver determines the address family for direct connections.
	// Defaults to SystemResolver.
	Resolver Resolver
}

// Addr returns the server's host:port.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(int(c.Port)))
}

// Dialer opens IRC transports. Opening is split in two steps so the caller
// can observe the raw TCP connection before the TLS handshake:
//
//	raw, err := d.DialTCP(ctx)
//	// raw.LocalAddr / raw.RemoteAddr are the TCP endpoints (ident lookups)
//	conn, err := d.Handshake(ctx, raw)
type Dialer struct {
	config   Config
	tcp      *net.Dialer
	proxy    proxy.ContextDialer
	resolver Resolver
	logger   *logrus.Entry
}

// NewDialer validates config and prepares a Dialer.
func NewDialer(config Config) (*Dialer, error) {
	if config.Host == "" {
		return nil, fmt.Errorf("%w: host is required", ErrInvalidConfig)
	}
	if config.Port == 0 {
		return nil, fmt.Errorf("%w: port is required", ErrInvalidConfig)
	}

	tcp := &net.Dialer{Timeout: config.Timeout}
	if config.LocalAddress != "" {
		ip := net.ParseIP(config.LocalAddress)
		if ip == nil {
			return nil, fmt.Errorf("%w: local address %q is not an IP", ErrInvalidConfig, config.LocalAddress)
		}
		tcp.LocalAddr = &net.TCPAddr{IP: ip}
	}

	d := &Dialer{
		config:   config,
		tcp:      tcp,
		resolver: config.Resolver,
		logger: logrus.WithFields(logrus.Fields{
			"component": "Dialer",
			"addr":      config.Addr(),
		}),
	}
	if d.resolver == nil {
		d.resolver = &SystemResolver{}
	}

	if config.Proxy != nil {
		pd, err := newProxyDialer(config.Proxy, tcp)
		if err != nil {
			return nil, err
		}
		d.proxy = pd
	}

	return d, nil
}

// Proxied reports whether connections are relayed through a proxy.
func (d *Dialer) Proxied() bool {
	return d.proxy != nil
}

// DialTCP opens the TCP stream to the server, directly or through the proxy.
// Direct connections resolve the host first and dial the resolved family;
// proxied connections hand the hostname to the proxy.
func (d *Dialer) DialTCP(ctx context.Context) (net.Conn, error) {
	if d.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.config.Timeout)
		defer cancel()
	}

	if d.proxy != nil {
		d.logger.WithFields(logrus.Fields{
			"function":   "DialTCP",
			"proxy_type": d.config.Proxy.Type,
			"proxy_addr": d.config.Proxy.Addr(),
		}).Debug("Dialing via proxy")

		conn, err := d.proxy.DialContext(ctx, "tcp", d.config.Addr())
		if err != nil {
			return nil, fmt.Errorf("proxy dial failed: %w", err)
		}
		return conn, nil
	}

	res, err := d.resolver.Resolve(ctx, d.config.Host)
	if err != nil {
		return nil, err
	}

	target := net.JoinHostPort(res.IP.String(), strconv.Itoa(int(d.config.Port)))
	d.logger.WithFields(logrus.Fields{
		"function": "DialTCP",
		"target":   target,
		"family":   res.Family,
	}).Debug("Dialing")

	conn, err := d.tcp.DialContext(ctx, res.Family.Network(), target)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Handshake layers TLS over raw when TLS is enabled, otherwise it returns raw.
// raw is closed when the handshake fails.
func (d *Dialer) Handshake(ctx context.Context, raw net.Conn) (net.Conn, error) {
	if !d.config.TLS {
		return raw, nil
	}

	if d.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.config.Timeout)
		defer cancel()
	}

	tlsConn := tls.Client(raw, d.tlsConfig())
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		raw.Close()
		return nil, fmt.Errorf("tls handshake: %w", err)
	}

	state := tlsConn.ConnectionState()
	d.logger.WithFields(logrus.Fields{
		"function":     "Handshake",
		"tls_version":  tls.VersionName(state.Version),
		"cipher_suite": tls.CipherSuiteName(state.CipherSuite),
	}).Debug("TLS handshake complete")

	return tlsConn, nil
}

func (d *Dialer) tlsConfig() *tls.Config {
	var cfg *tls.Config
	if d.config.TLSConfig != nil {
		cfg = d.config.TLSConfig.Clone()
	} else {
		cfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	if cfg.ServerName == "" {
		cfg.ServerName = d.config.ServerName
	}
	if cfg.ServerName == "" {
		cfg.ServerName = d.config.Host
	}
	if d.config.InsecureSkipVerify {
		cfg.InsecureSkipVerify = true
	}
	return cfg
}
