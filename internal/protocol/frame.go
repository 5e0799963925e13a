// Package protocol implements the framed wire format shared by the
// upstream agent connection and the viewer connection: a one-byte type
// tag, a big-endian four-byte length, and the payload itself.
package protocol

import (
	"encoding/binary"
	"fmt"
)

// Frame type tags. These values are part of the wire contract, not
// language tokens — do not renumber.
const (
	TypeOutput   byte = 0
	TypeInput    byte = 1
	TypeResize   byte = 2
	TypeMetadata byte = 3
)

// headerSize is 1 byte of type plus 4 bytes of big-endian length.
const headerSize = 5

// MaxFrameLength bounds a single frame's payload to guard against a
// misbehaving peer claiming an unbounded length prefix.
const MaxFrameLength = 16 * 1024 * 1024

// Pack serializes a single frame: type | length | payload.
func Pack(frameType byte, payload []byte) []byte {
	buf := make([]byte, headerSize+len(payload))
	buf[0] = frameType
	binary.BigEndian.PutUint32(buf[1:5], uint32(len(payload)))
	copy(buf[5:], payload)
	return buf
}

// ResizePayload encodes a RESIZE frame's payload: rows then cols, both
// big-endian u16.
func ResizePayload(rows, cols uint16) []byte {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint16(payload[0:2], rows)
	binary.BigEndian.PutUint16(payload[2:4], cols)
	return payload
}

// PackResize encodes a complete RESIZE frame (header and payload).
func PackResize(rows, cols uint16) []byte {
	return Pack(TypeResize, ResizePayload(rows, cols))
}

// UnpackResize decodes a RESIZE payload. Returns an error if the payload
// is not exactly 4 bytes.
func UnpackResize(payload []byte) (rows, cols uint16, err error) {
	if len(payload) != 4 {
		return 0, 0, fmt.Errorf("protocol: resize payload length %d, want 4", len(payload))
	}
	rows = binary.BigEndian.Uint16(payload[0:2])
	cols = binary.BigEndian.Uint16(payload[2:4])
	return rows, cols, nil
}

// Frame is a single decoded type|payload pair.
type Frame struct {
	Type    byte
	Payload []byte
}

// IterFrames consumes complete frames from the front of buf, returning the
// decoded frames and the number of bytes consumed. Partial trailing bytes
// are left for the caller to retain and prepend to the next read — buf
// itself is never mutated.
func IterFrames(buf []byte) (frames []Frame, consumed int) {
	for {
		remaining := buf[consumed:]
		if len(remaining) < headerSize {
			return frames, consumed
		}
		frameType := remaining[0]
		length := binary.BigEndian.Uint32(remaining[1:5])
		total := headerSize + int(length)
		if length > MaxFrameLength || len(remaining) < total {
			return frames, consumed
		}
		payload := make([]byte, length)
		copy(payload, remaining[headerSize:total])
		frames = append(frames, Frame{Type: frameType, Payload: payload})
		consumed += total
	}
}
