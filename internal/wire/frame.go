// Package wire implements the length-prefixed frame format used by every
// message on an hvrpc connection: a 4-byte big-endian length (including
// itself), a fixed-layout header, then an opaque payload.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Message types carried in a frame header's Type field.
const (
	TypeCall uint32 = iota
	TypeReply
	TypeMessage
	TypeStream
)

// Status codes carried in a frame header's Status field.
const (
	StatusOK uint32 = iota
	StatusError
	StatusContinue
)

// HeaderSize is the encoded size, in bytes, of a Header: six uint32 fields.
const HeaderSize = 24

// LengthPrefixSize is the size, in bytes, of the leading frame length field.
const LengthPrefixSize = 4

// MaxFrameLength bounds the declared frame length against runaway
// allocation from a malicious or corrupt peer. It is a compile-time
// constant, matching libvirt's VIR_NET_MESSAGE_MAX convention.
const MaxFrameLength = 4 << 20 // 4 MiB

var (
	// ErrFrameTooShort is returned when a declared or actual frame length
	// is smaller than LengthPrefixSize+HeaderSize.
	ErrFrameTooShort = errors.New("wire: frame length below header size")
	// ErrFrameTooLarge is returned when a declared frame length exceeds
	// MaxFrameLength.
	ErrFrameTooLarge = errors.New("wire: frame length exceeds maximum")
)

// Header is the fixed-layout RPC header that follows the length prefix on
// every frame. Fields are encoded in this order, each a big-endian uint32.
type Header struct {
	Program   uint32
	Version   uint32
	Procedure uint32
	Type      uint32
	Serial    uint32
	Status    uint32
}

// EncodeHeader appends the 24-byte wire encoding of h to buf and returns
// the extended slice.
func EncodeHeader(buf []byte, h Header) []byte {
	buf = binary.BigEndian.AppendUint32(buf, h.Program)
	buf = binary.BigEndian.AppendUint32(buf, h.Version)
	buf = binary.BigEndian.AppendUint32(buf, h.Procedure)
	buf = binary.BigEndian.AppendUint32(buf, h.Type)
	buf = binary.BigEndian.AppendUint32(buf, h.Serial)
	buf = binary.BigEndian.AppendUint32(buf, h.Status)
	return buf
}

// DecodeHeader parses a Header from the first HeaderSize bytes of buf.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, ErrFrameTooShort
	}
	return Header{
		Program:   binary.BigEndian.Uint32(buf[0:4]),
		Version:   binary.BigEndian.Uint32(buf[4:8]),
		Procedure: binary.BigEndian.Uint32(buf[8:12]),
		Type:      binary.BigEndian.Uint32(buf[12:16]),
		Serial:    binary.BigEndian.Uint32(buf[16:20]),
		Status:    binary.BigEndian.Uint32(buf[20:24]),
	}, nil
}

// EncodeFrame builds a complete frame: the 4-byte length prefix (counting
// itself), the header, then payload verbatim.
func EncodeFrame(h Header, payload []byte) ([]byte, error) {
	total := LengthPrefixSize + HeaderSize + len(payload)
	if total > MaxFrameLength {
		return nil, fmt.Errorf("%w: %d", ErrFrameTooLarge, total)
	}
	buf := make([]byte, 0, total)
	buf = binary.BigEndian.AppendUint32(buf, uint32(total))
	buf = EncodeHeader(buf, h)
	buf = append(buf, payload...)
	return buf, nil
}

// EncodeRequest builds a CALL frame with status OK, the shape every
// synchronous RPC sends.
func EncodeRequest(program, version, procedure, serial uint32, payload []byte) ([]byte, error) {
	return EncodeFrame(Header{
		Program:   program,
		Version:   version,
		Procedure: procedure,
		Type:      TypeCall,
		Serial:    serial,
		Status:    StatusOK,
	}, payload)
}

// EncodeStream builds a STREAM frame with the given status, one of
// StatusOK, StatusError, or StatusContinue.
func EncodeStream(program, version, procedure, serial, status uint32, payload []byte) ([]byte, error) {
	return EncodeFrame(Header{
		Program:   program,
		Version:   version,
		Procedure: procedure,
		Type:      TypeStream,
		Serial:    serial,
		Status:    status,
	}, payload)
}

// DecodeLength reads and validates the 4-byte length prefix from the front
// of buf, without consuming anything beyond those four bytes. The returned
// length includes the prefix itself.
func DecodeLength(buf []byte) (uint32, error) {
	if len(buf) < LengthPrefixSize {
		return 0, ErrFrameTooShort
	}
	length := binary.BigEndian.Uint32(buf)
	if length < LengthPrefixSize+HeaderSize {
		return length, ErrFrameTooShort
	}
	if length > MaxFrameLength {
		return length, ErrFrameTooLarge
	}
	return length, nil
}

// ReadFrame reads one complete frame from r: the length prefix, then
// exactly that many bytes minus the prefix itself. It returns the decoded
// header and the remaining payload.
func ReadFrame(r io.Reader) (Header, []byte, error) {
	var lenBuf [LengthPrefixSize]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return Header{}, nil, err
	}
	length, err := DecodeLength(lenBuf[:])
	if err != nil {
		return Header{}, nil, err
	}

	rest := make([]byte, length-LengthPrefixSize)
	if _, err := io.ReadFull(r, rest); err != nil {
		return Header{}, nil, err
	}
	h, err := DecodeHeader(rest)
	if err != nil {
		return Header{}, nil, err
	}
	return h, rest[HeaderSize:], nil
}

// WriteFrame encodes h and payload and writes the resulting frame to w in
// a single call.
func WriteFrame(w io.Writer, h Header, payload []byte) error {
	frame, err := EncodeFrame(h, payload)
	if err != nil {
		return err
	}
	_, err = w.Write(frame)
	return err
}
