package auth

import (
	"context"
	"errors"
)

// ErrExternalRequiresUnix is returned when the "external" mechanism is
// selected over a transport other than a local UNIX socket: the server
// derives the caller's identity from SO_PEERCRED, which only exists on a
// UNIX domain socket.
var ErrExternalRequiresUnix = errors.New("auth: external mechanism requires a unix transport")

// ExternalMechanism implements the POLKIT-style local peer-credential
// check. The client sends no payload; the server resolves the caller's
// identity from the socket's peer credentials and returns its decision in
// its reply to the client's AUTH-INIT, with no token of its own.
type ExternalMechanism struct {
	// UnixTransport must be true for this mechanism to proceed; set by the
	// caller based on the negotiated Transport.
	UnixTransport bool
}

func (ExternalMechanism) Name() string { return "external" }

func (m ExternalMechanism) Init(ctx context.Context) ([]byte, error) {
	if !m.UnixTransport {
		return nil, ErrExternalRequiresUnix
	}
	return nil, nil
}

func (ExternalMechanism) Step(ctx context.Context, challenge []byte) ([]byte, bool, error) {
	return nil, true, nil
}
