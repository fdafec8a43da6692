package gateway

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"
)

// Frame layout: uint32 big-endian payload length, then the payload.
// The payload is the message fields joined by NUL bytes, with a
// trailing NUL after the last field.

// maxFrameSize bounds a single frame; anything larger means a corrupt
// stream or a protocol mismatch.
const maxFrameSize = 1 << 20

// WriteFrame encodes fields into a single frame and writes it to w.
func WriteFrame(w io.Writer, fields ...string) error {
	var b strings.Builder
	for _, f := range fields {
		b.WriteString(f)
		b.WriteByte(0)
	}
	payload := b.String()

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))

	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if _, err := io.WriteString(w, payload); err != nil {
		return fmt.Errorf("write frame payload: %w", err)
	}
	return nil
}

// ReadFrame reads a single frame from r and splits it into fields.
func ReadFrame(r io.Reader) ([]string, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	size := binary.BigEndian.Uint32(header[:])
	if size == 0 {
		return nil, fmt.Errorf("empty frame")
	}
	if size > maxFrameSize {
		return nil, fmt.Errorf("frame size %d exceeds limit %d", size, maxFrameSize)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}

	if payload[len(payload)-1] != 0 {
		return nil, fmt.Errorf("frame payload not NUL-terminated")
	}

	fields := strings.Split(string(payload[:len(payload)-1]), "\x00")
	return fields, nil
}
