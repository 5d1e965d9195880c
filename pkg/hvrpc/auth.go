package hvrpc

import (
	"context"

	"github.com/kridian/hvrpc/internal/auth"
	"github.com/kridian/hvrpc/internal/security"
	"github.com/kridian/hvrpc/internal/telemetry"
	"github.com/kridian/hvrpc/internal/wire"
)

// authListReply is the AUTH-LIST response: the mechanisms the server is
// willing to accept, in preference order. An empty list means no
// authentication is required.
type authListReply struct {
	Mechs []string
}

// authStepPayload is both the AUTH-INIT and AUTH-STEP request/reply
// shape: one opaque token.
type authStepPayload struct {
	Token []byte
}

// callExchanger adapts Connection.Call to auth.Exchanger: every AUTH-INIT
// or AUTH-STEP round trip is an ordinary synchronous RPC on the same
// wait-list/dispatch machinery as any other call, distinguished only by
// procedure number. The first Exchange sends AUTH-INIT; every one after
// it sends AUTH-STEP.
type callExchanger struct {
	conn    *Connection
	started bool
}

func (e *callExchanger) Exchange(ctx context.Context, payload []byte) ([]byte, bool, error) {
	procedure := ProcAuthStep
	if !e.started {
		procedure = ProcAuthInit
		e.started = true
	}

	req, err := wire.MarshalPayload(authStepPayload{Token: payload})
	if err != nil {
		return nil, false, &ProtocolError{Reason: err.Error()}
	}
	reply, err := e.conn.Call(ctx, ProgramRemote, ProtocolVersion, procedure, req)
	if err != nil {
		if remote, ok := err.(*RemoteError); ok {
			return nil, false, &AuthenticationError{Reason: "rejected by server", Err: remote}
		}
		return nil, false, err
	}
	var resp authStepPayload
	if err := wire.UnmarshalPayload(reply, &resp); err != nil {
		return nil, false, &ProtocolError{Reason: err.Error()}
	}
	// A zero-length reply token marks the server considers the handshake
	// complete.
	return resp.Token, len(resp.Token) == 0, nil
}

// negotiateAuth runs the AUTH-LIST/AUTH-INIT/AUTH-STEP handshake described
// in spec.md §4.3. It must run before finishOpening so any MESSAGE frames
// that arrive mid-handshake are dropped rather than queued as events. On
// success it returns the SecurityLayer the negotiated mechanism installs:
// security.Passthrough(under) unless the mechanism itself negotiates
// encryption, or nil if no authentication occurred at all (empty
// AUTH-LIST offer), in which case the caller leaves the raw transport in
// place.
func negotiateAuth(ctx context.Context, c *Connection, preferred string, unixTransport bool, creds auth.Credentials) (security.Layer, error) {
	listCtx, listSpan := telemetry.StartAuthSpan(ctx, telemetry.SpanAuthList, "")
	listReq, err := wire.MarshalPayload(struct{}{})
	if err != nil {
		listSpan.End()
		return nil, &ProtocolError{Reason: err.Error()}
	}
	listResp, err := c.Call(listCtx, ProgramRemote, ProtocolVersion, ProcAuthList, listReq)
	if err != nil {
		telemetry.RecordError(listCtx, err)
		listSpan.End()
		return nil, &AuthenticationError{Reason: "auth-list failed", Err: err}
	}
	var list authListReply
	if err := wire.UnmarshalPayload(listResp, &list); err != nil {
		listSpan.End()
		return nil, &ProtocolError{Reason: err.Error()}
	}
	listSpan.End()
	if len(list.Mechs) == 0 {
		return nil, nil
	}

	mech, err := auth.Negotiate(list.Mechs, preferred, unixTransport, creds)
	if err != nil {
		return nil, &AuthenticationError{Reason: "no acceptable mechanism", Err: err}
	}

	handshakeCtx, handshakeSpan := telemetry.StartAuthSpan(ctx, telemetry.SpanAuthStep, mech.Name())
	defer handshakeSpan.End()

	ex := &callExchanger{conn: c}
	layer, err := auth.Run(handshakeCtx, mech, ex, c.rw)
	if err != nil {
		telemetry.RecordError(handshakeCtx, err)
		return nil, &AuthenticationError{Reason: "handshake with mechanism " + mech.Name(), Err: err}
	}
	return layer, nil
}
