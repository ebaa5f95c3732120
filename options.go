package ircsock

import (
	"crypto/tls"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/ircsock/metrics"
	"github.com/opd-ai/ircsock/transport"
)

// ProxyType selects the relay protocol.
type ProxyType = transport.ProxyType

const (
	ProxyTypeSOCKS5 = transport.ProxyTypeSOCKS5
	ProxyTypeHTTP   = transport.ProxyTypeHTTP
)

// ProxyOptions contains the proxy a Connection is relayed through.
type ProxyOptions struct {
	Type     ProxyType
	Host     string
	Port     uint16
	Username string
	Password string
}

// Options contains configuration for a Connection. The Connection keeps its
// own copy; changing an Options value after New has no effect.
type Options struct {
	Host string
	Port uint16

	TLS bool
	// InsecureSkipVerify disables certificate validation for TLS connections.
	InsecureSkipVerify bool
	// ServerName overrides the TLS server name (defaults to Host).
	ServerName string
	// TLSConfig is cloned as the base TLS configuration when set.
	TLSConfig *tls.Config

	// LocalAddress binds outgoing connections to a local IP.
	LocalAddress string
	Proxy        *ProxyOptions

	AutoReconnect bool
	// Encoding is the initial character encoding. An unsafe or unknown name
	// leaves the encoding unset until Connect falls back to UTF-8.
	Encoding string

	// Nameserver, when set (host or host:port), resolves the server's address
	// family by querying that DNS server directly.
	Nameserver  string
	DialTimeout time.Duration

	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
	// RegistrationGrace is how long a connection must have been registered for
	// a drop to be treated as transient.
	RegistrationGrace time.Duration

	// QueueHighWater pauses socket reads while this many lines or messages are
	// waiting for the consumer.
	QueueHighWater int
	// WriteQueueSize bounds the number of lines waiting to be written.
	WriteQueueSize int

	Parser  LineParser
	Clock   clock.Clock
	Metrics *metrics.Metrics
	Logger  *logrus.Entry
}

// NewOptions creates a new default Options.
func NewOptions() *Options {
	return &Options{
		Port:                 DefaultPort,
		AutoReconnect:        true,
		Encoding:             "UTF-8",
		DialTimeout:          DefaultDialTimeout,
		ReconnectDelay:       DefaultReconnectDelay,
		MaxReconnectAttempts: DefaultMaxReconnectAttempts,
		RegistrationGrace:    DefaultRegistrationGrace,
		QueueHighWater:       DefaultQueueHighWater,
		WriteQueueSize:       DefaultWriteQueueSize,
	}
}

const (
	DefaultPort                 = 6667
	DefaultDialTimeout          = 30 * time.Second
	DefaultReconnectDelay       = 4000 * time.Millisecond
	DefaultMaxReconnectAttempts = 3
	DefaultRegistrationGrace    = 10 * time.Second
	DefaultQueueHighWater       = 256
	DefaultWriteQueueSize       = 64
)

// Validate checks that the options describe a reachable server and sane limits.
func (o *Options) Validate() error {
	if o.Host == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidOptions)
	}
	if o.Port == 0 {
		return fmt.Errorf("%w: port is required", ErrInvalidOptions)
	}
	if o.Proxy != nil {
		switch o.Proxy.Type {
		case ProxyTypeSOCKS5, ProxyTypeHTTP:
		default:
			return fmt.Errorf("%w: unsupported proxy type %q", ErrInvalidOptions, o.Proxy.Type)
		}
		if o.Proxy.Host == "" || o.Proxy.Port == 0 {
			return fmt.Errorf("%w: proxy host and port are required", ErrInvalidOptions)
		}
	}
	if o.DialTimeout < 0 {
		return fmt.Errorf("%w: dial timeout must not be negative", ErrInvalidOptions)
	}
	if o.ReconnectDelay <= 0 {
		return fmt.Errorf("%w: reconnect delay must be positive", ErrInvalidOptions)
	}
	if o.MaxReconnectAttempts <= 0 {
		return fmt.Errorf("%w: max reconnect attempts must be positive", ErrInvalidOptions)
	}
	if o.RegistrationGrace < 0 {
		return fmt.Errorf("%w: registration grace must not be negative", ErrInvalidOptions)
	}
	if o.QueueHighWater <= 0 || o.WriteQueueSize <= 0 {
		return fmt.Errorf("%w: queue sizes must be positive", ErrInvalidOptions)
	}
	return nil
}

// withDefaults fills the zero-valued tunables so that an Options literal
// behaves like NewOptions for everything the caller left out.
func (o Options) withDefaults() Options {
	if o.ReconnectDelay == 0 {
		o.ReconnectDelay = DefaultReconnectDelay
	}
	if o.MaxReconnectAttempts == 0 {
		o.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if o.QueueHighWater == 0 {
		o.QueueHighWater = DefaultQueueHighWater
	}
	if o.WriteQueueSize == 0 {
		o.WriteQueueSize = DefaultWriteQueueSize
	}
	if o.Parser == nil {
		o.Parser = ParseLine
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	return o
}

func (o *Options) transportConfig() transport.Config {
	cfg := transport.Config{
		Host:               o.Host,
		Port:               o.Port,
		TLS:                o.TLS,
		InsecureSkipVerify: o.InsecureSkipVerify,
		ServerName:         o.ServerName,
		TLSConfig:          o.TLSConfig,
		LocalAddress:       o.LocalAddress,
		Timeout:            o.DialTimeout,
	}
	if o.Proxy != nil {
		cfg.Proxy = &transport.ProxyConfig{
			Type:     o.Proxy.Type,
			Host:     o.Proxy.Host,
			Port:     o.Proxy.Port,
			Username: o.Proxy.Username,
			Password: o.Proxy.Password,
		}
	}
	if o.Nameserver != "" {
		timeout := o.DialTimeout
		if timeout == 0 {
			timeout = DefaultDialTimeout
		}
		cfg.Resolver = transport.NewDNSResolver(o.Nameserver, timeout)
	}
	return cfg
}
