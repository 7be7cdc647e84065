package rdt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		name    string
		flags   Flags
		seq, ack Value
		payload []byte
	}{
		{"SYN", FlagSYN, 1234, 0, nil},
		{"SYN|ACK", FlagSYN | FlagACK, 5555, 1235, nil},
		{"ACK", FlagACK, 1235, 5556, nil},
		{"DATA empty", FlagDATA, 1235, 5556, []byte{}},
		{"DATA max", FlagDATA, 42, 99, make([]byte, PayloadCap)},
		{"FIN", FlagFIN, 9999, 10, nil},
		{"FIN|ACK", FlagFIN | FlagACK, 10, 10000, nil},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			wire := Encode(nil, c.flags, c.seq, c.ack, c.payload)
			got, err := Decode(wire)
			require.NoError(t, err)
			assert.Equal(t, c.flags, got.Flags)
			assert.Equal(t, c.seq, got.Seq)
			assert.Equal(t, c.ack, got.Ack)
			if len(c.payload) == 0 {
				assert.Empty(t, got.Data)
			} else {
				assert.Equal(t, c.payload, got.Data)
			}
		})
	}
}

func TestDecodeMalformedShortHeader(t *testing.T) {
	_, err := Decode(make([]byte, 10))
	require.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeMalformedLengthMismatch(t *testing.T) {
	wire := Encode(nil, FlagDATA, 1, 1, []byte("hello"))
	// Truncate payload without fixing the length field.
	wire = wire[:len(wire)-2]
	_, err := Decode(wire)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestFlagsString(t *testing.T) {
	assert.Equal(t, "none", Flags(0).String())
	assert.Equal(t, "SYN|ACK", (FlagSYN | FlagACK).String())
	assert.Equal(t, "FIN|ACK", (FlagFIN | FlagACK).String())
}
