// Package ntlmmsg builds and parses NTLM messages for the client side of the
// handshake, [MS-NLMP]. It is the mirror image of a file server's NTLM
// acceptor: this package emits Type 1 (NEGOTIATE) and Type 3 (AUTHENTICATE)
// messages and parses the server's Type 2 (CHALLENGE).
package ntlmmsg

import (
	"crypto/hmac"
	"crypto/md5" //nolint:gosec // required for NTLMv2 HMAC-MD5 per [MS-NLMP]
	"crypto/rand"
	"encoding/binary"
	"strings"
	"time"
	"unicode/utf16"

	"golang.org/x/crypto/md4" //nolint:staticcheck // required for NT hash per [MS-NLMP]
)

// MessageType identifies the three messages in the NTLM handshake.
// [MS-NLMP] Section 2.2.1
type MessageType uint32

const (
	Negotiate    MessageType = 1
	Challenge    MessageType = 2
	Authenticate MessageType = 3
)

// Signature is the 8-byte signature that identifies NTLM messages.
var Signature = []byte{'N', 'T', 'L', 'M', 'S', 'S', 'P', 0}

const (
	signatureOffset   = 0
	messageTypeOffset = 8
	headerSize        = 12
)

// NTLM Type 1 (NEGOTIATE) message offsets. [MS-NLMP] Section 2.2.1.1
const (
	negotiateFlagsOffset        = 12
	negotiateDomainLenOffset    = 16
	negotiateDomainMaxOffset    = 18
	negotiateDomainOffOffset    = 20
	negotiateWorkstnLenOffset   = 24
	negotiateWorkstnMaxOffset   = 26
	negotiateWorkstnOffOffset   = 28
	negotiateBaseSize           = 32
)

// NTLM Type 2 (CHALLENGE) message offsets. [MS-NLMP] Section 2.2.1.2
const (
	challengeTargetNameLenOffset = 12
	challengeTargetNameOffOffset = 16
	challengeFlagsOffset         = 20
	challengeServerChalOffset    = 24
	challengeTargetInfoLenOffset = 40
	challengeTargetInfoOffOffset = 44
	challengeBaseSize            = 56
	serverChallengeSize          = 8
)

// NTLM Type 3 (AUTHENTICATE) message offsets. [MS-NLMP] Section 2.2.1.3
const (
	authLmResponseLenOffset  = 12
	authLmResponseOffOffset  = 16
	authNtResponseLenOffset  = 20
	authNtResponseOffOffset  = 24
	authDomainNameLenOffset  = 28
	authDomainNameOffOffset  = 32
	authUserNameLenOffset    = 36
	authUserNameOffOffset    = 40
	authWorkstationLenOffset = 44
	authWorkstationOffOffset = 48
	authNegotiateFlagsOffset = 60
	authBaseSize             = 64
)

// NegotiateFlag controls authentication behavior and capabilities.
// [MS-NLMP] Section 2.2.2.5
type NegotiateFlag uint32

const (
	FlagUnicode          NegotiateFlag = 0x00000001
	FlagOEM              NegotiateFlag = 0x00000002
	FlagRequestTarget    NegotiateFlag = 0x00000004
	FlagSign             NegotiateFlag = 0x00000010
	FlagNTLM             NegotiateFlag = 0x00000200
	FlagAlwaysSign       NegotiateFlag = 0x00008000
	FlagExtendedSecurity NegotiateFlag = 0x00080000
	FlagTargetInfo       NegotiateFlag = 0x00800000
	FlagVersion          NegotiateFlag = 0x02000000
	Flag128              NegotiateFlag = 0x20000000
	FlagKeyExch          NegotiateFlag = 0x40000000
	Flag56               NegotiateFlag = 0x80000000
)

// AvID identifies an AV_PAIR in the TargetInfo field of a Type 2 message.
// [MS-NLMP] Section 2.2.2.1
type AvID uint16

const (
	AvEOL             AvID = 0x0000
	AvNbComputerName  AvID = 0x0001
	AvNbDomainName    AvID = 0x0002
	AvDnsComputerName AvID = 0x0003
	AvDnsDomainName   AvID = 0x0004
	AvTimestamp       AvID = 0x0007
)

// Error is a sentinel-style NTLM error.
type Error string

func (e Error) Error() string { return string(e) }

const (
	ErrMessageTooShort  Error = "ntlm: message too short"
	ErrInvalidSignature Error = "ntlm: invalid signature"
	ErrWrongMessageType Error = "ntlm: wrong message type"
)

// IsValid reports whether buf begins with the NTLMSSP signature.
func IsValid(buf []byte) bool {
	if len(buf) < headerSize {
		return false
	}
	for i, b := range Signature {
		if buf[signatureOffset+i] != b {
			return false
		}
	}
	return true
}

// GetMessageType returns the NTLM message type, or 0 if buf is malformed.
func GetMessageType(buf []byte) MessageType {
	if len(buf) < headerSize {
		return 0
	}
	return MessageType(binary.LittleEndian.Uint32(buf[messageTypeOffset : messageTypeOffset+4]))
}

// clientFlags are the flags this package advertises in a NEGOTIATE message.
func clientFlags() NegotiateFlag {
	return FlagUnicode | FlagRequestTarget | FlagNTLM | FlagSign | FlagAlwaysSign |
		FlagExtendedSecurity | FlagTargetInfo | FlagKeyExch | Flag128 | Flag56
}

// BuildNegotiate creates an NTLM Type 1 (NEGOTIATE) message. The domain and
// workstation fields are always left empty; this package does not set
// FlagDomainSupplied or FlagWorkstationSupplied, matching a client with no
// pre-arranged domain.
// [MS-NLMP] Section 2.2.1.1
func BuildNegotiate() []byte {
	msg := make([]byte, negotiateBaseSize)
	copy(msg[signatureOffset:signatureOffset+8], Signature)
	binary.LittleEndian.PutUint32(msg[messageTypeOffset:messageTypeOffset+4], uint32(Negotiate))
	binary.LittleEndian.PutUint32(msg[negotiateFlagsOffset:negotiateFlagsOffset+4], uint32(clientFlags()))
	// DomainNameFields and WorkstationFields left zero: no payload supplied.
	return msg
}

// ChallengeMessage holds the fields parsed out of a server's Type 2 message.
type ChallengeMessage struct {
	TargetName      string
	ServerChallenge [8]byte
	TargetInfo      []byte
	NegotiateFlags  NegotiateFlag
}

// ParseChallenge parses an NTLM Type 2 (CHALLENGE) message from the server.
// [MS-NLMP] Section 2.2.1.2
func ParseChallenge(buf []byte) (*ChallengeMessage, error) {
	if len(buf) < challengeBaseSize {
		return nil, ErrMessageTooShort
	}
	if !IsValid(buf) {
		return nil, ErrInvalidSignature
	}
	if GetMessageType(buf) != Challenge {
		return nil, ErrWrongMessageType
	}

	msg := &ChallengeMessage{}
	msg.NegotiateFlags = NegotiateFlag(binary.LittleEndian.Uint32(buf[challengeFlagsOffset : challengeFlagsOffset+4]))
	copy(msg.ServerChallenge[:], buf[challengeServerChalOffset:challengeServerChalOffset+serverChallengeSize])

	isUnicode := msg.NegotiateFlags&FlagUnicode != 0

	nameLen := binary.LittleEndian.Uint16(buf[challengeTargetNameLenOffset : challengeTargetNameLenOffset+2])
	nameOff := binary.LittleEndian.Uint32(buf[challengeTargetNameOffOffset : challengeTargetNameOffOffset+4])
	if nameLen > 0 && int(nameOff)+int(nameLen) <= len(buf) {
		msg.TargetName = decodeString(buf[nameOff:nameOff+uint32(nameLen)], isUnicode)
	}

	infoLen := binary.LittleEndian.Uint16(buf[challengeTargetInfoLenOffset : challengeTargetInfoLenOffset+2])
	infoOff := binary.LittleEndian.Uint32(buf[challengeTargetInfoOffOffset : challengeTargetInfoOffOffset+4])
	if infoLen > 0 && int(infoOff)+int(infoLen) <= len(buf) {
		msg.TargetInfo = append([]byte(nil), buf[infoOff:infoOff+uint32(infoLen)]...)
	}

	return msg, nil
}

// BuildAuthenticate computes the NTLMv2 response to challenge and marshals
// an NTLM Type 3 (AUTHENTICATE) message. [MS-NLMP] Section 2.2.1.3 / 3.3.2
func BuildAuthenticate(challenge *ChallengeMessage, username, domain, workstation, password string) []byte {
	ntHash := ComputeNTHash(password)
	ntlmv2Hash := ComputeNTLMv2Hash(ntHash, username, domain)

	clientBlob := buildClientBlob(challenge.TargetInfo)
	ntResponse := computeNTLMv2Response(ntlmv2Hash, challenge.ServerChallenge, clientBlob)

	domainBytes := encodeUTF16LE(domain)
	userBytes := encodeUTF16LE(username)
	workstationBytes := encodeUTF16LE(workstation)

	flags := clientFlags()
	if domain != "" {
		flags |= 0x00001000 // FlagDomainSupplied
	}

	domainOff := authBaseSize
	userOff := domainOff + len(domainBytes)
	workstationOff := userOff + len(userBytes)
	ntResponseOff := workstationOff + len(workstationBytes)
	total := ntResponseOff + len(ntResponse)

	msg := make([]byte, total)
	copy(msg[signatureOffset:signatureOffset+8], Signature)
	binary.LittleEndian.PutUint32(msg[messageTypeOffset:messageTypeOffset+4], uint32(Authenticate))

	// LmChallengeResponse left empty: NTLMv2-only client.
	binary.LittleEndian.PutUint16(msg[authLmResponseLenOffset:authLmResponseLenOffset+2], 0)
	binary.LittleEndian.PutUint32(msg[authLmResponseOffOffset:authLmResponseOffOffset+4], uint32(authBaseSize))

	binary.LittleEndian.PutUint16(msg[authNtResponseLenOffset:authNtResponseLenOffset+2], uint16(len(ntResponse)))
	binary.LittleEndian.PutUint32(msg[authNtResponseOffOffset:authNtResponseOffOffset+4], uint32(ntResponseOff))

	binary.LittleEndian.PutUint16(msg[authDomainNameLenOffset:authDomainNameLenOffset+2], uint16(len(domainBytes)))
	binary.LittleEndian.PutUint32(msg[authDomainNameOffOffset:authDomainNameOffOffset+4], uint32(domainOff))

	binary.LittleEndian.PutUint16(msg[authUserNameLenOffset:authUserNameLenOffset+2], uint16(len(userBytes)))
	binary.LittleEndian.PutUint32(msg[authUserNameOffOffset:authUserNameOffOffset+4], uint32(userOff))

	binary.LittleEndian.PutUint16(msg[authWorkstationLenOffset:authWorkstationLenOffset+2], uint16(len(workstationBytes)))
	binary.LittleEndian.PutUint32(msg[authWorkstationOffOffset:authWorkstationOffOffset+4], uint32(workstationOff))

	binary.LittleEndian.PutUint32(msg[authNegotiateFlagsOffset:authNegotiateFlagsOffset+4], uint32(flags))

	copy(msg[domainOff:], domainBytes)
	copy(msg[userOff:], userBytes)
	copy(msg[workstationOff:], workstationBytes)
	copy(msg[ntResponseOff:], ntResponse)

	return msg
}

// buildClientBlob assembles the NTLMv2 client blob: a header, the current
// timestamp, an 8-byte client nonce, the server's TargetInfo echoed back,
// and a zero terminator. [MS-NLMP] Section 2.2.2.7
func buildClientBlob(targetInfo []byte) []byte {
	const epochDiff = 116444736000000000
	ft := uint64(time.Now().UnixNano()/100) + epochDiff

	nonce := make([]byte, 8)
	_, _ = rand.Read(nonce)

	blob := make([]byte, 0, 32+len(targetInfo)+4)
	blob = append(blob, 0x01, 0x01, 0x00, 0x00) // RespType, HiRespType, reserved
	blob = append(blob, 0x00, 0x00, 0x00, 0x00) // reserved
	ts := make([]byte, 8)
	binary.LittleEndian.PutUint64(ts, ft)
	blob = append(blob, ts...)
	blob = append(blob, nonce...)
	blob = append(blob, 0x00, 0x00, 0x00, 0x00) // unknown/reserved
	blob = append(blob, targetInfo...)
	blob = append(blob, 0x00, 0x00, 0x00, 0x00) // terminator
	return blob
}

// computeNTLMv2Response returns NTProofStr || ClientBlob.
func computeNTLMv2Response(ntlmv2Hash [16]byte, serverChallenge [8]byte, clientBlob []byte) []byte {
	mac := hmac.New(md5.New, ntlmv2Hash[:])
	mac.Write(serverChallenge[:])
	mac.Write(clientBlob)
	ntProofStr := mac.Sum(nil)

	response := make([]byte, 0, len(ntProofStr)+len(clientBlob))
	response = append(response, ntProofStr...)
	response = append(response, clientBlob...)
	return response
}

// ComputeNTHash computes the NT hash from a password: MD4(UTF16LE(password)).
// [MS-NLMP] Section 3.3.1
func ComputeNTHash(password string) [16]byte {
	passwordBytes := encodeUTF16LE(password)
	h := md4.New()
	h.Write(passwordBytes)
	var ntHash [16]byte
	copy(ntHash[:], h.Sum(nil))
	return ntHash
}

// ComputeNTLMv2Hash computes HMAC-MD5(NTHash, UPPERCASE(username)+domain).
// [MS-NLMP] Section 3.3.2
func ComputeNTLMv2Hash(ntHash [16]byte, username, domain string) [16]byte {
	combined := strings.ToUpper(username) + domain
	mac := hmac.New(md5.New, ntHash[:])
	mac.Write(encodeUTF16LE(combined))
	var out [16]byte
	copy(out[:], mac.Sum(nil))
	return out
}

func encodeUTF16LE(s string) []byte {
	encoded := utf16.Encode([]rune(s))
	b := make([]byte, len(encoded)*2)
	for i, v := range encoded {
		binary.LittleEndian.PutUint16(b[i*2:], v)
	}
	return b
}

func decodeString(buf []byte, isUnicode bool) string {
	if !isUnicode {
		return string(buf)
	}
	if len(buf)%2 != 0 {
		buf = buf[:len(buf)-1]
	}
	runes := make([]rune, len(buf)/2)
	for i := 0; i < len(buf); i += 2 {
		runes[i/2] = rune(binary.LittleEndian.Uint16(buf[i : i+2]))
	}
	return string(runes)
}
