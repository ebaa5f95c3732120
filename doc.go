// Package ircsock implements a resilient transport for the IRC protocol.
//
// A [Connection] owns one socket at a time (plain TCP, TLS, or relayed
// through a SOCKS5 or HTTP CONNECT proxy), frames the incoming byte stream
// into lines, parses them into messages at the pace the consumer reads them,
// writes outgoing lines with CRLF termination in the configured character
// encoding, and reconnects after transient drops.
//
// # Getting Started
//
//	options := ircsock.NewOptions()
//	options.Host = "irc.libera.chat"
//	options.Port = 6697
//	options.TLS = true
//
//	conn, err := ircsock.New(options)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer conn.Dispose()
//
//	conn.OnConnected(func() {
//	    conn.Write("NICK gopher")
//	    conn.Write("USER gopher 0 * :Gopher")
//	})
//
//	if err := conn.Connect(); err != nil {
//	    log.Fatal(err)
//	}
//
//	for {
//	    msg, err := conn.ReadMessage(ctx)
//	    if err != nil {
//	        break
//	    }
//	    if msg.Command == "001" {
//	        conn.MarkRegistered()
//	    }
//	}
//
// # Framing
//
// Incoming data is split on LF. A CR before the LF stays in the line and is
// stripped by the [LineParser]. At most 1024 bytes of unterminated data are
// held; a server that sends more without a line break gets its socket
// destroyed and the error reported as [ErrBufferOverflow] through OnError.
//
// # Backpressure
//
// Lines are parsed only as fast as the consumer reads messages, four per
// turn of the event loop. While too many lines or messages are waiting, the
// Connection stops reading from the socket so TCP flow control slows the
// server down.
//
// # Reconnection
//
// When AutoReconnect is set, a socket that closes without being requested
// is retried after ReconnectDelay if the connection had been registered
// (see [Connection.MarkRegistered]) for longer than RegistrationGrace, and
// a retry sequence continues for up to MaxReconnectAttempts. Otherwise the
// close is terminal and OnClose reports it.
//
// # Encodings
//
// [Connection.SetEncoding] accepts any encoding known to golang.org/x/text
// that encodes ASCII unchanged. Wide encodings such as UTF-16 are rejected.
package ircsock
