package ircsock

import (
	"gopkg.in/sorcix/irc.v2"
)

// Message is a parsed protocol line.
type Message = irc.Message

// LineParser turns one decoded line into a Message. Returning false drops the
// line. Lines may carry a trailing CR, which the parser is expected to strip.
type LineParser func(line string) (*Message, bool)

// ParseLine is the default LineParser.
func ParseLine(line string) (*Message, bool) {
	msg := irc.ParseMessage(line)
	if msg == nil || msg.Command == "" {
		return nil, false
	}
	return msg, true
}
