package charset

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	tests := []struct {
		name    string
		label   string
		wantErr bool
	}{
		{"IANA name", "UTF-8", false},
		{"lower case", "utf-8", false},
		{"WHATWG label", "utf8", false},
		{"latin1 label", "latin1", false},
		{"windows codepage", "windows-1252", false},
		{"padded", "  UTF-8 ", false},
		{"empty", "", true},
		{"unknown", "not-a-charset", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			codec, err := Lookup(tt.label)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrUnknownEncoding), "got %v", err)
				assert.Nil(t, codec)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, codec.Name())
		})
	}
}

func TestValidateAcceptsASCIISafe(t *testing.T) {
	for _, label := range []string{"UTF-8", "utf8", "latin1", "windows-1252", "ISO-8859-15"} {
		t.Run(label, func(t *testing.T) {
			codec, err := Validate(label)
			require.NoError(t, err)
			require.NotNil(t, codec)

			encoded, err := codec.Encode(Probe)
			require.NoError(t, err)
			assert.Equal(t, []byte(Probe), encoded)
		})
	}
}

func TestValidateRejectsUnsafe(t *testing.T) {
	for _, label := range []string{"UTF-16LE", "UTF-16BE", "IBM037"} {
		t.Run(label, func(t *testing.T) {
			codec, err := Validate(label)
			assert.ErrorIs(t, err, ErrUnsafeEncoding)
			assert.Nil(t, codec)
		})
	}
}

func TestValidateUnknown(t *testing.T) {
	_, err := Validate("klingon")
	assert.ErrorIs(t, err, ErrUnknownEncoding)
}

func TestUTF8RoundTrip(t *testing.T) {
	text := "PRIVMSG #go :héllo wörld ✓"

	encoded, err := UTF8.Encode(text)
	require.NoError(t, err)
	assert.Equal(t, []byte(text), encoded)

	decoded, err := UTF8.Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, text, decoded)
}

func TestUTF8DecodeReplacesInvalid(t *testing.T) {
	decoded, err := UTF8.Decode([]byte("abc\xffdef"))
	require.NoError(t, err)
	assert.Equal(t, "abc�def", decoded)
}

func TestLatin1Conversion(t *testing.T) {
	codec, err := Validate("latin1")
	require.NoError(t, err)

	decoded, err := codec.Decode([]byte{'c', 'a', 'f', 0xe9})
	require.NoError(t, err)
	assert.Equal(t, "café", decoded)

	encoded, err := codec.Encode("café")
	require.NoError(t, err)
	assert.Equal(t, []byte{'c', 'a', 'f', 0xe9}, encoded)
}

func TestEncodeReplacesUnsupported(t *testing.T) {
	codec, err := Validate("latin1")
	require.NoError(t, err)

	encoded, err := codec.Encode("snow ☃")
	require.NoError(t, err)
	assert.Equal(t, "snow ", string(encoded[:5]))
	assert.NotContains(t, string(encoded), "☃")
}
