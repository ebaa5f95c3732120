package transport

import (
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	exampleDomain = "irc.example.test"
	v6OnlyDomain  = "v6.example.test"
	exampleIPv4   = "192.0.2.10"
	exampleIPv6   = "2001:db8::10"
)

// startDNSServer serves A records for exampleDomain and AAAA records for
// both test domains; anything else is NXDOMAIN.
func startDNSServer(t *testing.T) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	started := make(chan struct{})
	server := &dns.Server{
		PacketConn:        pc,
		NotifyStartedFunc: func() { close(started) },
		Handler: dns.HandlerFunc(func(w dns.ResponseWriter, r *dns.Msg) {
			m := new(dns.Msg)
			m.SetReply(r)
			q := r.Question[0]
			hdr := dns.RR_Header{Name: q.Name, Rrtype: q.Qtype, Class: dns.ClassINET, Ttl: 60}

			switch {
			case q.Name == dns.Fqdn(exampleDomain) && q.Qtype == dns.TypeA:
				m.Answer = append(m.Answer, &dns.A{Hdr: hdr, A: net.ParseIP(exampleIPv4)})
			case q.Name == dns.Fqdn(exampleDomain) && q.Qtype == dns.TypeAAAA,
				q.Name == dns.Fqdn(v6OnlyDomain) && q.Qtype == dns.TypeAAAA:
				m.Answer = append(m.Answer, &dns.AAAA{Hdr: hdr, AAAA: net.ParseIP(exampleIPv6)})
			case q.Name == dns.Fqdn(v6OnlyDomain):
			default:
				m.Rcode = dns.RcodeNameError
			}
			w.WriteMsg(m)
		}),
	}

	go server.ActivateAndServe()
	t.Cleanup(func() { server.Shutdown() })

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("DNS server did not start")
	}
	return pc.LocalAddr().String()
}

func TestDNSResolverPrefersIPv4(t *testing.T) {
	r := NewDNSResolver(startDNSServer(t), time.Second)

	res, err := r.Resolve(testContext(t), exampleDomain)
	require.NoError(t, err)
	assert.Equal(t, FamilyIPv4, res.Family)
	assert.True(t, res.IP.Equal(net.ParseIP(exampleIPv4)))
	assert.Equal(t, "tcp4", res.Family.Network())
}

func TestDNSResolverFallsBackToIPv6(t *testing.T) {
	r := NewDNSResolver(startDNSServer(t), time.Second)

	res, err := r.Resolve(testContext(t), v6OnlyDomain)
	require.NoError(t, err)
	assert.Equal(t, FamilyIPv6, res.Family)
	assert.True(t, res.IP.Equal(net.ParseIP(exampleIPv6)))
	assert.Equal(t, "tcp6", res.Family.Network())
}

func TestDNSResolverNXDomain(t *testing.T) {
	r := NewDNSResolver(startDNSServer(t), time.Second)

	_, err := r.Resolve(testContext(t), "missing.example.test")
	assert.ErrorIs(t, err, ErrNoAddress)
}

func TestResolversPassLiterals(t *testing.T) {
	resolvers := map[string]Resolver{
		"system": &SystemResolver{},
		"dns":    NewDNSResolver("127.0.0.1:1", time.Millisecond),
	}

	for name, r := range resolvers {
		t.Run(name, func(t *testing.T) {
			res, err := r.Resolve(testContext(t), "::1")
			require.NoError(t, err)
			assert.Equal(t, FamilyIPv6, res.Family)

			res, err = r.Resolve(testContext(t), "127.0.0.1")
			require.NoError(t, err)
			assert.Equal(t, FamilyIPv4, res.Family)
		})
	}
}

func TestSystemResolverLocalhost(t *testing.T) {
	res, err := (&SystemResolver{}).Resolve(testContext(t), "localhost")
	require.NoError(t, err)
	assert.True(t, res.IP.IsLoopback())
}

func TestNewDNSResolverDefaultsPort(t *testing.T) {
	r := NewDNSResolver("192.0.2.53", 0)
	assert.Equal(t, "192.0.2.53:53", r.server)
	assert.Equal(t, 5*time.Second, r.client.Timeout)
}
