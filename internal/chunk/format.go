// Package chunk defines the on-disk frame used by persistent tier stores.
//
// Layout: [4 magic][2 version][2 reserved][4 index][8 length][4 crc32] followed
// by length payload bytes. The header is fixed size so a payload range can be
// read at HeaderSize+offset without decoding anything else.
package chunk

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
)

const (
	// Magic identifies a chunk frame ("TWCK").
	Magic = uint32(0x5457434B)

	// Version is the current frame version.
	Version = uint16(1)

	// HeaderSize is the fixed frame header length.
	HeaderSize = 24
)

// ErrChecksum is returned when a payload does not match its header.
var ErrChecksum = errors.New("chunk checksum mismatch")

// Header describes a framed payload.
type Header struct {
	Index  uint32
	Length int64
	CRC    uint32
}

// NewHeader builds the header for payload.
func NewHeader(index uint32, payload []byte) Header {
	return Header{
		Index:  index,
		Length: int64(len(payload)),
		CRC:    crc32.ChecksumIEEE(payload),
	}
}

// Encode serializes the header.
func (h Header) Encode() []byte {
	buf := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], Magic)
	binary.BigEndian.PutUint16(buf[4:6], Version)
	binary.BigEndian.PutUint32(buf[8:12], h.Index)
	binary.BigEndian.PutUint64(buf[12:20], uint64(h.Length))
	binary.BigEndian.PutUint32(buf[20:24], h.CRC)
	return buf
}

// Encode returns header and payload as one frame.
func Encode(index uint32, payload []byte) []byte {
	buf := make([]byte, 0, HeaderSize+len(payload))
	buf = append(buf, NewHeader(index, payload).Encode()...)
	return append(buf, payload...)
}

// DecodeHeader parses the first HeaderSize bytes of raw.
func DecodeHeader(raw []byte) (Header, error) {
	if len(raw) < HeaderSize {
		return Header{}, fmt.Errorf("chunk header too small: %d bytes", len(raw))
	}

	magic := binary.BigEndian.Uint32(raw[0:4])
	if magic != Magic {
		return Header{}, fmt.Errorf("invalid chunk magic: 0x%08X", magic)
	}

	version := binary.BigEndian.Uint16(raw[4:6])
	if version != Version {
		return Header{}, fmt.Errorf("unsupported chunk version: %d", version)
	}

	return Header{
		Index:  binary.BigEndian.Uint32(raw[8:12]),
		Length: int64(binary.BigEndian.Uint64(raw[12:20])),
		CRC:    binary.BigEndian.Uint32(raw[20:24]),
	}, nil
}

// Decode parses a full frame and verifies its payload.
func Decode(raw []byte) (Header, []byte, error) {
	h, err := DecodeHeader(raw)
	if err != nil {
		return Header{}, nil, err
	}
	payload := raw[HeaderSize:]
	if int64(len(payload)) != h.Length {
		return Header{}, nil, fmt.Errorf("truncated chunk %d: have %d of %d bytes", h.Index, len(payload), h.Length)
	}
	if err := h.Verify(payload); err != nil {
		return Header{}, nil, err
	}
	return h, payload, nil
}

// Verify checks payload against the header checksum.
func (h Header) Verify(payload []byte) error {
	if got := crc32.ChecksumIEEE(payload); got != h.CRC {
		return fmt.Errorf("%w: chunk %d expected 0x%08X, got 0x%08X", ErrChecksum, h.Index, h.CRC, got)
	}
	return nil
}

// PayloadRange returns the byte range of payload[off:off+n] within a frame,
// as an inclusive HTTP-style range.
func PayloadRange(off int64, n int) (start, end int64) {
	start = HeaderSize + off
	return start, start + int64(n) - 1
}
