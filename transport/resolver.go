package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"
)

// Family is the IP address family of a resolved host.
type Family int

const (
	// FamilyIPv4 is an IPv4 address.
	FamilyIPv4 Family = 4
	// FamilyIPv6 is an IPv6 address.
	FamilyIPv6 Family = 6
)

// Network returns the TCP network name for dialing this family.
func (f Family) Network() string {
	if f == FamilyIPv6 {
		return "tcp6"
	}
	return "tcp4"
}

func familyOf(ip net.IP) Family {
	if ip.To4() != nil {
		return FamilyIPv4
	}
	return FamilyIPv6
}

// Resolved is a host's chosen address and its family.
type Resolved struct {
	IP     net.IP
	Family Family
}

// Resolver resolves a hostname to one address and its family.
type Resolver interface {
	Resolve(ctx context.Context, host string) (Resolved, error)
}

// literal returns the address for an IP literal host, if it is one.
func literal(host string) (Resolved, bool) {
	ip := net.ParseIP(host)
	if ip == nil {
		return Resolved{}, false
	}
	return Resolved{IP: ip, Family: familyOf(ip)}, true
}

// SystemResolver resolves through the operating system's configured resolver.
type SystemResolver struct {
	// Resolver overrides net.DefaultResolver when set.
	Resolver *net.Resolver
}

// Resolve returns the first address the system resolver reports.
func (r *SystemResolver) Resolve(ctx context.Context, host string) (Resolved, error) {
	if res, ok := literal(host); ok {
		return res, nil
	}

	resolver := r.Resolver
	if resolver == nil {
		resolver = net.DefaultResolver
	}

	addrs, err := resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return Resolved{}, fmt.Errorf("resolve %s: %w", host, err)
	}
	if len(addrs) == 0 {
		return Resolved{}, fmt.Errorf("%w: %s", ErrNoAddress, host)
	}
	return Resolved{IP: addrs[0].IP, Family: familyOf(addrs[0].IP)}, nil
}

// DNSResolver queries one DNS server directly. IPv4 is asked for first and
// IPv6 only when the host has no A record.
type DNSResolver struct {
	server string
	client *dns.Client
	logger *logrus.Entry
}

// NewDNSResolver creates a resolver for server, given as host or host:port.
func NewDNSResolver(server string, timeout time.Duration) *DNSResolver {
	if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(server, "53")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &DNSResolver{
		server: server,
		client: &dns.Client{Net: "udp", Timeout: timeout},
		logger: logrus.WithField("component", "DNSResolver"),
	}
}

// Resolve implements Resolver.
func (r *DNSResolver) Resolve(ctx context.Context, host string) (Resolved, error) {
	if res, ok := literal(host); ok {
		return res, nil
	}

	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		ip, err := r.query(ctx, host, qtype)
		if err != nil {
			return Resolved{}, err
		}
		if ip != nil {
			return Resolved{IP: ip, Family: familyOf(ip)}, nil
		}
	}
	return Resolved{}, fmt.Errorf("%w: %s", ErrNoAddress, host)
}

func (r *DNSResolver) query(ctx context.Context, host string, qtype uint16) (net.IP, error) {
	request := &dns.Msg{MsgHdr: dns.MsgHdr{RecursionDesired: true}}
	request.SetQuestion(dns.Fqdn(host), qtype)

	response, rtt, err := r.client.ExchangeContext(ctx, request, r.server)
	if err != nil {
		return nil, fmt.Errorf("resolve %s via %s: %w", host, r.server, err)
	}

	r.logger.WithFields(logrus.Fields{
		"function": "query",
		"host":     host,
		"qtype":    dns.TypeToString[qtype],
		"rcode":    dns.RcodeToString[response.Rcode],
		"rtt":      rtt,
	}).Debug("DNS response")

	if response.Rcode != dns.RcodeSuccess {
		if response.Rcode == dns.RcodeNameError {
			return nil, fmt.Errorf("%w: %s", ErrNoAddress, host)
		}
		return nil, fmt.Errorf("resolve %s: server returned %s", host, dns.RcodeToString[response.Rcode])
	}

	for _, answer := range response.Answer {
		switch rr := answer.(type) {
		case *dns.A:
			return rr.A, nil
		case *dns.AAAA:
			return rr.AAAA, nil
		}
	}
	return nil, nil
}
