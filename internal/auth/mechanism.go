// Package auth implements the client side of the authentication handshake:
// AUTH-LIST negotiates a mechanism, AUTH-INIT sends its first token, and
// zero or more AUTH-STEP round trips complete it. pkg/hvrpc owns the frames;
// this package owns the mechanism state machines.
package auth

import (
	"context"
	"io"

	"github.com/kridian/hvrpc/internal/security"
)

// Credentials supplies what a Mechanism needs to answer a server challenge.
// A caller-supplied implementation can prompt interactively, read from a
// credential cache, or return static values for automation.
type Credentials interface {
	Username(ctx context.Context) (string, error)
	Password(ctx context.Context) (string, error)
	// Realm returns the Kerberos realm or NTLM domain, or "" if none.
	Realm(ctx context.Context) (string, error)
}

// Mechanism drives one authentication exchange.
type Mechanism interface {
	// Name is the mechanism name as negotiated in AUTH-LIST, e.g. "none",
	// "external", "gssapi", "ntlm".
	Name() string

	// Init returns the token to send with AUTH-INIT. May be empty.
	Init(ctx context.Context) ([]byte, error)

	// Step consumes the server's reply to the previous token and returns
	// the next token to send. done reports that this mechanism has
	// nothing further to send; the caller still waits for the server's
	// final AUTH-STEP status.
	Step(ctx context.Context, challenge []byte) (response []byte, done bool, err error)
}

// Exchanger sends one AUTH-INIT/AUTH-STEP payload and returns the server's
// reply. complete reports that the server considers the handshake finished
// (pkg/hvrpc takes a zero-length reply token as that signal).
type Exchanger interface {
	Exchange(ctx context.Context, payload []byte) (reply []byte, complete bool, err error)
}

// LayerNegotiator is implemented by a Mechanism that, having completed its
// handshake, can install a confidentiality/integrity SecurityLayer over
// the connection's byte stream (e.g. a SASL mechanism with a negotiated
// security strength factor). A Mechanism that doesn't implement it gets
// security.Passthrough: no implemented Mechanism in this package
// negotiates one today, but the contract exists for one that does.
type LayerNegotiator interface {
	Layer(under io.ReadWriter) security.Layer
}

// Run drives a Mechanism to completion against ex, starting with Init and
// alternating Step calls with Exchange calls until the server reports
// completion (a mechanism reporting done only empties the next token). On success it returns the SecurityLayer to install over
// under for the rest of the connection's lifetime: whatever m.Layer
// returns if m implements LayerNegotiator, or security.Passthrough(under)
// otherwise.
func Run(ctx context.Context, m Mechanism, ex Exchanger, under io.ReadWriter) (security.Layer, error) {
	token, err := m.Init(ctx)
	if err != nil {
		return nil, err
	}

	for {
		reply, complete, err := ex.Exchange(ctx, token)
		if err != nil {
			return nil, err
		}
		if complete {
			return negotiatedLayer(m, under), nil
		}

		next, done, err := m.Step(ctx, reply)
		if err != nil {
			return nil, err
		}
		if done && len(next) == 0 {
			// Mechanism has nothing left to say; send an empty token and
			// let the server's next reply decide completion.
			token = nil
			continue
		}
		token = next
	}
}

func negotiatedLayer(m Mechanism, under io.ReadWriter) security.Layer {
	if n, ok := m.(LayerNegotiator); ok {
		return n.Layer(under)
	}
	return security.Passthrough(under)
}
