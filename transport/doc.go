// Package transport opens the byte streams an IRC connection runs over: plain
// TCP, TLS over TCP, and either of those relayed through a SOCKS5 or HTTP
// CONNECT proxy.
//
// Opening is split in two so the caller can see the TCP endpoints before the
// TLS handshake, which ident lookups need:
//
//	d, err := transport.NewDialer(transport.Config{
//	    Host: "irc.libera.chat",
//	    Port: 6697,
//	    TLS:  true,
//	})
//	raw, err := d.DialTCP(ctx)
//	conn, err := d.Handshake(ctx, raw)
//
// # Address Family
//
// Direct connections resolve the host first and dial the family of the
// address found (tcp4 or tcp6). [SystemResolver] uses the Go resolver;
// [DNSResolver] queries a configured DNS server directly. Proxied connections
// skip local resolution and hand the hostname to the proxy.
//
// # Proxies
//
// SOCKS5 relays use golang.org/x/net/proxy, with optional username and
// password authentication. HTTP relays issue a CONNECT request with optional
// basic proxy authorization. When a local address is configured it applies to
// the hop to the proxy.
package transport
