package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	xdr "github.com/rasky/go-xdr/xdr2"
)

// MarshalPayload encodes v — a generated request or reply struct — into
// XDR via reflection, the mechanism the generated procedure wrappers use
// for everything but raw stream data.
func MarshalPayload(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := xdr.Marshal(&buf, v); err != nil {
		return nil, fmt.Errorf("wire: marshal payload: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalPayload decodes an XDR-encoded payload into v.
func UnmarshalPayload(payload []byte, v interface{}) error {
	if _, err := xdr.Unmarshal(bytes.NewReader(payload), v); err != nil {
		return fmt.Errorf("wire: unmarshal payload: %w", err)
	}
	return nil
}

// WriteOpaque encodes variable-length opaque data per RFC 4506 §4.10:
// length, data, zero padding to the next 4-byte boundary. Stream payloads
// are framed this way directly rather than through a generated struct.
func WriteOpaque(buf *bytes.Buffer, data []byte) error {
	length := uint32(len(data))
	if err := binary.Write(buf, binary.BigEndian, length); err != nil {
		return fmt.Errorf("wire: write opaque length: %w", err)
	}
	if _, err := buf.Write(data); err != nil {
		return fmt.Errorf("wire: write opaque data: %w", err)
	}
	return writePadding(buf, length)
}

// ReadOpaque decodes variable-length opaque data written by WriteOpaque,
// rejecting a declared length above maxLength.
func ReadOpaque(r io.Reader, maxLength uint32) ([]byte, error) {
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return nil, fmt.Errorf("wire: read opaque length: %w", err)
	}
	if length > maxLength {
		return nil, fmt.Errorf("wire: opaque length %d exceeds maximum %d", length, maxLength)
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("wire: read opaque data: %w", err)
	}
	return data, skipPadding(r, length)
}

func writePadding(buf *bytes.Buffer, dataLen uint32) error {
	padding := (4 - (dataLen % 4)) % 4
	if padding == 0 {
		return nil
	}
	var padBytes [3]byte
	if _, err := buf.Write(padBytes[:padding]); err != nil {
		return fmt.Errorf("wire: write padding: %w", err)
	}
	return nil
}

func skipPadding(r io.Reader, dataLen uint32) error {
	padding := (4 - (dataLen % 4)) % 4
	if padding == 0 {
		return nil
	}
	var padBuf [3]byte
	if _, err := io.ReadFull(r, padBuf[:padding]); err != nil {
		return fmt.Errorf("wire: skip padding: %w", err)
	}
	return nil
}
