// Package limits provides centralized size limits for the IRC transport.
// This ensures the line framer, the connection, and outgoing line validation
// agree on the same bounds.
//
// # Incoming Data
//
//   - MaxFragmentSize (1024 bytes): the most unterminated data a connection
//     will hold while waiting for a line feed. It comfortably exceeds two
//     maximum-length RFC 1459 lines. A peer that sends more without a line
//     feed is treated as malicious or broken and the socket is destroyed.
//
//   - LinesPerTurn (4): how many buffered lines are decoded and parsed before
//     the connection yields to other events.
//
// # Outgoing Data
//
//   - MaxLineLength (512 bytes): the RFC 1459 line length, CRLF included.
//
//   - MaxTagsLength (8191 bytes): the IRCv3 message-tags allowance that may
//     precede the RFC 1459 part of a line.
//
// Outgoing lines are checked with ValidateOutgoingLine:
//
//	if err := limits.ValidateOutgoingLine(line); err != nil {
//	    // ErrLineEmpty, ErrLineBreak or ErrLineTooLong
//	}
package limits
