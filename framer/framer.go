// Package framer splits a TCP byte stream into IRC protocol lines.
//
// A Framer is fed raw chunks exactly as they come off the socket. It holds the
// unterminated tail of a chunk until the next line feed arrives and refuses to
// hold more than a fixed number of bytes, so a peer that never terminates a
// line cannot grow memory without bound.
package framer

import (
	"bytes"

	"github.com/opd-ai/ircsock/limits"
)

const delim byte = '\n'

// Framer converts raw chunks into complete lines. The line feed is removed,
// a trailing carriage return is left in place for the parser to strip.
//
// A Framer is not safe for concurrent use.
type Framer struct {
	held     []byte
	holdLast bool
	max      int
}

// New creates a Framer that holds at most max unterminated bytes.
// A non-positive max selects limits.MaxFragmentSize.
func New(max int) *Framer {
	if max <= 0 {
		max = limits.MaxFragmentSize
	}
	return &Framer{max: max}
}

// Push consumes one chunk and returns the lines it completes, in order.
// Returned lines may share memory with chunk, which must not be reused.
//
// When the unterminated data would exceed the limit, Push returns an error
// wrapping limits.ErrFragmentTooLarge and no lines; the framer keeps its
// previous state and the caller is expected to drop the connection.
func (f *Framer) Push(chunk []byte) ([][]byte, error) {
	if len(chunk) == 0 {
		return nil, nil
	}

	last := bytes.LastIndexByte(chunk, delim)
	if last < 0 {
		if err := limits.ValidateFragment(len(f.held)+len(chunk), f.max); err != nil {
			return nil, err
		}
		f.held = append(f.held, chunk...)
		f.holdLast = true
		return nil, nil
	}

	// The held fragment is always consumed by the first line below, so the
	// new tail is bounded on its own.
	tail := chunk[last+1:]
	if err := limits.ValidateFragment(len(tail), f.max); err != nil {
		return nil, err
	}

	lines := make([][]byte, 0, bytes.Count(chunk[:last+1], []byte{delim}))
	rest := chunk[:last+1]
	for len(rest) > 0 {
		i := bytes.IndexByte(rest, delim)
		line := rest[:i]
		rest = rest[i+1:]

		if f.holdLast {
			joined := make([]byte, 0, len(f.held)+len(line))
			joined = append(joined, f.held...)
			line = append(joined, line...)
			f.held = nil
			f.holdLast = false
		}
		lines = append(lines, line)
	}

	if len(tail) > 0 {
		f.held = append([]byte(nil), tail...)
		f.holdLast = true
	}

	return lines, nil
}

// Held returns the number of unterminated bytes currently held.
func (f *Framer) Held() int {
	return len(f.held)
}

// Holding reports whether the last chunk ended in an unterminated line.
func (f *Framer) Holding() bool {
	return f.holdLast
}

// Reset discards any held fragment.
func (f *Framer) Reset() {
	f.held = nil
	f.holdLast = false
}
