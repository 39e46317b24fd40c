// Package nativemsg implements the Chrome native messaging transport:
// every message is a 4-byte little-endian length followed by that many
// bytes of JSON.
package nativemsg

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// Chrome caps messages sent from the host at 1 MB; anything bigger
// means a framing bug, not a real request.
const maxMessageSize = 1 << 20

// ReadMessage reads one length-prefixed JSON message. io.EOF means the
// peer closed the channel cleanly.
func ReadMessage(r io.Reader) (json.RawMessage, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("failed to read message header: %w", err)
	}

	size := binary.LittleEndian.Uint32(header[:])
	if size == 0 {
		return nil, fmt.Errorf("zero-length message")
	}
	if size > maxMessageSize {
		return nil, fmt.Errorf("message of %d bytes exceeds limit", size)
	}

	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("failed to read message body: %w", err)
	}
	return buf, nil
}

// WriteMessage encodes v and writes it with the length prefix.
func WriteMessage(w io.Writer, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	if len(body) > maxMessageSize {
		return fmt.Errorf("message of %d bytes exceeds limit", len(body))
	}

	var header [4]byte
	binary.LittleEndian.PutUint32(header[:], uint32(len(body)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("failed to write message header: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("failed to write message body: %w", err)
	}
	return nil
}
