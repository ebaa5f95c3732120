package limits

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// MaxFragmentSize is the largest unterminated fragment a connection holds.
	MaxFragmentSize = 1024

	// LinesPerTurn is the number of buffered lines processed per loop turn.
	LinesPerTurn = 4

	// MaxLineLength is the RFC 1459 limit for a single line including CRLF.
	MaxLineLength = 512

	// MaxTagsLength is the IRCv3 limit for the tags section of a line.
	MaxTagsLength = 8191

	// MaxOutgoingLine is the longest line accepted for writing, without CRLF.
	MaxOutgoingLine = MaxTagsLength + MaxLineLength - 2
)

var (
	// ErrFragmentTooLarge indicates unterminated data exceeded MaxFragmentSize
	ErrFragmentTooLarge = errors.New("line fragment too large")

	// ErrLineEmpty indicates an empty outgoing line
	ErrLineEmpty = errors.New("empty line")

	// ErrLineBreak indicates an outgoing line contains CR, LF or NUL
	ErrLineBreak = errors.New("line contains a line break")

	// ErrLineTooLong indicates an outgoing line exceeds MaxOutgoingLine
	ErrLineTooLong = errors.New("line too long")
)

// ValidateFragment reports whether size bytes of unterminated data fit within max.
func ValidateFragment(size, max int) error {
	if size > max {
		return fmt.Errorf("%w: %d bytes buffered without a line feed, limit %d", ErrFragmentTooLarge, size, max)
	}
	return nil
}

// ValidateOutgoingLine checks a single outgoing protocol line before it is
// encoded. The line must not carry its own terminator.
func ValidateOutgoingLine(line string) error {
	if len(line) == 0 {
		return ErrLineEmpty
	}
	if strings.ContainsAny(line, "\r\n\x00") {
		return ErrLineBreak
	}
	if len(line) > MaxOutgoingLine {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrLineTooLong, len(line), MaxOutgoingLine)
	}
	return nil
}
