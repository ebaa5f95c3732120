// Package charset looks up character encodings by name and decides whether an
// encoding is safe to use on an IRC connection.
//
// IRC's framing and command structure are plain ASCII. An encoding is only
// usable when it leaves ASCII text untouched, so Validate encodes a fixed
// ASCII probe and rejects any codec whose output differs from the input.
package charset

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
)

// Probe is the ASCII text every accepted encoding must reproduce byte for byte.
const Probe = "TEST"

var (
	// ErrUnknownEncoding indicates no codec is registered under the name
	ErrUnknownEncoding = errors.New("unknown encoding")

	// ErrUnsafeEncoding indicates the codec does not preserve ASCII text
	ErrUnsafeEncoding = errors.New("encoding is not ASCII safe")
)

// UTF8 is the codec used when no valid encoding has been chosen.
var UTF8 = &Codec{name: "UTF-8", enc: unicode.UTF8}

// Codec encodes outgoing text and decodes incoming bytes with one character
// encoding. Characters the encoding cannot represent are replaced rather than
// failing the whole line.
type Codec struct {
	name string
	enc  encoding.Encoding
}

// Name returns the canonical name of the encoding.
func (c *Codec) Name() string {
	return c.name
}

// Encode converts text to bytes in this encoding.
func (c *Codec) Encode(text string) ([]byte, error) {
	out, err := encoding.ReplaceUnsupported(c.enc.NewEncoder()).Bytes([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", c.name, err)
	}
	return out, nil
}

// Decode converts bytes in this encoding to text.
func (c *Codec) Decode(b []byte) (string, error) {
	out, err := c.enc.NewDecoder().Bytes(b)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", c.name, err)
	}
	return string(out), nil
}

// Lookup returns the codec registered under name. IANA names and aliases are
// tried first, then WHATWG labels such as "utf8" or "latin1".
func Lookup(name string) (*Codec, error) {
	label := strings.TrimSpace(name)
	if label == "" {
		return nil, fmt.Errorf("%w: empty name", ErrUnknownEncoding)
	}

	enc, err := ianaindex.IANA.Encoding(label)
	if err != nil || enc == nil {
		enc, err = htmlindex.Get(label)
		if err != nil || enc == nil {
			return nil, fmt.Errorf("%w: %q", ErrUnknownEncoding, name)
		}
	}

	canonical, err := ianaindex.IANA.Name(enc)
	if err != nil || canonical == "" {
		canonical = label
	}

	return &Codec{name: canonical, enc: enc}, nil
}

// Validate looks up name and accepts it only when the probe survives encoding
// and decoding unchanged.
func Validate(name string) (*Codec, error) {
	codec, err := Lookup(name)
	if err != nil {
		return nil, err
	}

	encoded, err := codec.Encode(Probe)
	if err != nil || !bytes.Equal(encoded, []byte(Probe)) {
		logrus.WithFields(logrus.Fields{
			"function": "Validate",
			"encoding": codec.Name(),
			"probe":    fmt.Sprintf("%x", encoded),
		}).Warn("Encoding rejected: probe changed when encoded")
		return nil, fmt.Errorf("%w: %s", ErrUnsafeEncoding, codec.Name())
	}

	decoded, err := codec.Decode(encoded)
	if err != nil || decoded != Probe {
		return nil, fmt.Errorf("%w: %s", ErrUnsafeEncoding, codec.Name())
	}

	return codec, nil
}
