// ABOUTME: Length-prefixed framing of opaque byte payloads for stream transports.
// ABOUTME: Fixed 4-byte big-endian header; oversized frames are errors, never truncations.

package frame

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// HeaderSize is the fixed width of the big-endian length header.
const HeaderSize = 4

// DefaultMaxPayload bounds memory use on the receive side when the Codec is
// not configured with an explicit maximum.
const DefaultMaxPayload = 16 << 20 // 16 MiB

// ErrPayloadTooLarge indicates a payload, or a frame's declared length,
// exceeds the configured maximum.
var ErrPayloadTooLarge = errors.New("frame payload too large")

// Codec frames byte payloads for transmission over a byte stream. The zero
// value is usable and applies DefaultMaxPayload.
type Codec struct {
	// MaxPayload is the largest payload accepted in either direction.
	// Zero means DefaultMaxPayload.
	MaxPayload int
}

func (c Codec) max() int {
	if c.MaxPayload <= 0 {
		return DefaultMaxPayload
	}
	return c.MaxPayload
}

// Encode turns a payload into one self-delimiting wire unit. Zero-length
// payloads are legal and round-trip as empty messages.
func (c Codec) Encode(payload []byte) ([]byte, error) {
	if len(payload) > c.max() {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, len(payload), c.max())
	}

	buf := make([]byte, HeaderSize+len(payload))
	binary.BigEndian.PutUint32(buf[:HeaderSize], uint32(len(payload)))
	copy(buf[HeaderSize:], payload)
	return buf, nil
}

// NewReader wraps r for frame-by-frame decoding with this codec's limits.
func (c Codec) NewReader(r io.Reader) *Reader {
	return &Reader{
		r:   bufio.NewReader(r),
		max: c.max(),
	}
}

// Reader demultiplexes a byte stream into discrete payloads.
type Reader struct {
	r   *bufio.Reader
	max int
}

// Next reads exactly one frame and returns its payload. A declared length
// over the configured maximum fails with ErrPayloadTooLarge. A stream that
// ends between frames returns io.EOF; one that ends mid-frame returns
// io.ErrUnexpectedEOF.
func (fr *Reader) Next() ([]byte, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(fr.r, header[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}

	length := binary.BigEndian.Uint32(header[:])
	// Compare in uint64 so a length above MaxInt32 cannot wrap negative on
	// 32-bit platforms and slip past the check.
	if uint64(length) > uint64(fr.max) {
		return nil, fmt.Errorf("%w: declared %d bytes (max %d)", ErrPayloadTooLarge, length, fr.max)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(fr.r, payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return payload, nil
}
