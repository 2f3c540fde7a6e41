// ABOUTME: Tests for frame encoding and stream decoding.
// ABOUTME: Covers round trips across payload sizes, concatenated streams, and oversize errors.

package frame

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodec_Encode_RoundTrip(t *testing.T) {
	codec := Codec{MaxPayload: 1024}

	sizes := []int{0, 1, 2, 63, 64, 1023, 1024}
	for _, n := range sizes {
		payload := bytes.Repeat([]byte{0xAB}, n)

		encoded, err := codec.Encode(payload)
		require.NoError(t, err, "size %d", n)
		require.Len(t, encoded, HeaderSize+n)

		decoded, err := codec.NewReader(bytes.NewReader(encoded)).Next()
		require.NoError(t, err, "size %d", n)
		assert.Equal(t, payload, decoded, "size %d", n)
	}
}

func TestCodec_Encode_PayloadTooLarge(t *testing.T) {
	codec := Codec{MaxPayload: 8}

	_, err := codec.Encode(make([]byte, 9))
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestCodec_Reader_ConcatenatedStream(t *testing.T) {
	codec := Codec{}

	var stream bytes.Buffer
	payloads := [][]byte{
		[]byte("first"),
		{},
		[]byte("third message, somewhat longer"),
	}
	for _, p := range payloads {
		encoded, err := codec.Encode(p)
		require.NoError(t, err)
		stream.Write(encoded)
	}

	reader := codec.NewReader(&stream)
	for i, want := range payloads {
		got, err := reader.Next()
		require.NoError(t, err, "frame %d", i)
		if len(want) == 0 {
			assert.Empty(t, got, "frame %d", i)
		} else {
			assert.Equal(t, want, got, "frame %d", i)
		}
	}

	_, err := reader.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestCodec_Reader_DeclaredLengthOverMax(t *testing.T) {
	codec := Codec{MaxPayload: 16}

	var header [HeaderSize]byte
	binary.BigEndian.PutUint32(header[:], 17)

	_, err := codec.NewReader(bytes.NewReader(header[:])).Next()
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestCodec_Reader_DeclaredLengthAboveMaxInt32(t *testing.T) {
	codec := Codec{MaxPayload: 16}

	// The full uint32 range must be rejected cleanly, including values that
	// would wrap negative as a 32-bit int.
	var header [HeaderSize]byte
	binary.BigEndian.PutUint32(header[:], 0xFFFFFFFF)

	_, err := codec.NewReader(bytes.NewReader(header[:])).Next()
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestCodec_Reader_TruncatedFrame(t *testing.T) {
	codec := Codec{}

	encoded, err := codec.Encode([]byte("complete payload"))
	require.NoError(t, err)

	// Cut the stream mid-payload.
	_, err = codec.NewReader(bytes.NewReader(encoded[:len(encoded)-3])).Next()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	// Cut the stream mid-header.
	_, err = codec.NewReader(bytes.NewReader(encoded[:2])).Next()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestCodec_ZeroValueUsesDefaultMax(t *testing.T) {
	codec := Codec{}

	encoded, err := codec.Encode([]byte("hello"))
	require.NoError(t, err)

	decoded, err := codec.NewReader(bytes.NewReader(encoded)).Next()
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), decoded)
}
