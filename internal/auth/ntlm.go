package auth

import (
	"context"
	"errors"
	"os"

	"github.com/kridian/hvrpc/internal/auth/ntlmmsg"
)

// ErrNTLMUnexpectedStep is returned when the server's AUTH-STEP sequence
// does not match the three-message NTLM handshake (NEGOTIATE, CHALLENGE,
// AUTHENTICATE).
var ErrNTLMUnexpectedStep = errors.New("auth: unexpected step in ntlm handshake")

// NTLMMechanism performs the client side of an NTLM handshake carried
// inside AUTH-INIT/AUTH-STEP frames: the client sends NEGOTIATE, the server
// replies with CHALLENGE, and the client answers with AUTHENTICATE computed
// from caller-supplied credentials.
type NTLMMechanism struct {
	Creds Credentials

	workstation string
	step        int
}

func (m *NTLMMechanism) Name() string { return "ntlm" }

func (m *NTLMMechanism) Init(ctx context.Context) ([]byte, error) {
	if m.workstation == "" {
		if host, err := os.Hostname(); err == nil {
			m.workstation = host
		}
	}
	m.step = 0
	return ntlmmsg.BuildNegotiate(), nil
}

func (m *NTLMMechanism) Step(ctx context.Context, challenge []byte) ([]byte, bool, error) {
	if m.step != 0 {
		return nil, false, ErrNTLMUnexpectedStep
	}
	m.step = 1

	parsed, err := ntlmmsg.ParseChallenge(challenge)
	if err != nil {
		return nil, false, err
	}

	username, err := m.Creds.Username(ctx)
	if err != nil {
		return nil, false, err
	}
	password, err := m.Creds.Password(ctx)
	if err != nil {
		return nil, false, err
	}
	domain, err := m.Creds.Realm(ctx)
	if err != nil {
		return nil, false, err
	}

	response := ntlmmsg.BuildAuthenticate(parsed, username, domain, m.workstation, password)
	return response, true, nil
}
