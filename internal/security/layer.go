// Package security implements the optional record-oriented SecurityLayer
// that wraps a Transport once an authentication mechanism negotiates one.
// Passthrough is used when no mechanism installs a layer.
package security

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Layer is the byte-pipe contract a SecurityLayer exposes: the same
// Read/Write shape as a Transport, so the dispatcher cannot tell whether
// it is talking to the raw transport or an encoding wrapper around it.
type Layer interface {
	io.Reader
	io.Writer
}

// Passthrough returns under unchanged: the no-op SecurityLayer installed
// when authentication negotiates no encryption.
func Passthrough(under io.ReadWriter) Layer {
	return under
}

// Coder encodes a plaintext buffer into one wire record and decodes a wire
// record back into plaintext. A single Encode call may produce a record
// larger than its input (integrity/confidentiality overhead); a single
// Decode call consumes exactly one record's bytes.
type Coder interface {
	Encode(plaintext []byte) (record []byte, err error)
	Decode(record []byte) (plaintext []byte, err error)
}

// maxRecordLength bounds a single negotiated record, matching the 4-octet
// network-byte-order length field RFC 4422 §3.7 specifies for a SASL
// security layer.
const maxRecordLength = 16 << 20 // 16 MiB

// recordLayer wraps an underlying transport with length-prefixed records:
// each write from above is encoded and sent as one complete record at once
// (nothing is held back), and a single read may be served from bytes
// already decoded from a previous record.
type recordLayer struct {
	under io.ReadWriter
	coder Coder

	pending []byte // decoded bytes from the last record not yet consumed
}

// Wrap installs coder as a record-oriented SecurityLayer over under.
func Wrap(under io.ReadWriter, coder Coder) Layer {
	return &recordLayer{under: under, coder: coder}
}

func (l *recordLayer) Write(p []byte) (int, error) {
	record, err := l.coder.Encode(p)
	if err != nil {
		return 0, fmt.Errorf("security: encode record: %w", err)
	}
	if len(record) > maxRecordLength {
		return 0, fmt.Errorf("security: encoded record %d bytes exceeds maximum %d", len(record), maxRecordLength)
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(record)))
	if _, err := l.under.Write(lenBuf[:]); err != nil {
		return 0, err
	}
	if _, err := l.under.Write(record); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (l *recordLayer) Read(p []byte) (int, error) {
	if len(l.pending) == 0 {
		if err := l.fillRecord(); err != nil {
			return 0, err
		}
	}
	n := copy(p, l.pending)
	l.pending = l.pending[n:]
	return n, nil
}

func (l *recordLayer) fillRecord() error {
	var lenBuf [4]byte
	if _, err := io.ReadFull(l.under, lenBuf[:]); err != nil {
		return err
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	if length > maxRecordLength {
		return fmt.Errorf("security: record length %d exceeds maximum %d", length, maxRecordLength)
	}
	record := make([]byte, length)
	if _, err := io.ReadFull(l.under, record); err != nil {
		return err
	}
	plaintext, err := l.coder.Decode(record)
	if err != nil {
		return fmt.Errorf("security: decode record: %w", err)
	}
	l.pending = plaintext
	return nil
}
