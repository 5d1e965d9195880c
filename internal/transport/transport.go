// Package transport implements the byte-pipe variants a Connection can be
// established over: TLS, plain TCP, UNIX domain sockets, an externally
// launched command, and an SSH convenience wrapper around the external
// variant. Every variant satisfies the same Transport contract so the
// dispatcher never needs to know which one it is driving.
package transport

import (
	"io"
	"time"
)

// Transport is the byte-pipe contract every variant exposes. It is
// intentionally narrower than net.Conn: the dispatcher only ever needs to
// read, write, interrupt a blocked read, and ask whether the channel
// already provides confidentiality.
type Transport interface {
	io.Reader
	io.Writer
	io.Closer

	// SetReadDeadline arranges for a blocked Read to return with a
	// timeout error at t. Passing a time in the past interrupts a read
	// already in progress — the dispatcher's substitute for the
	// self-pipe wakeup trick.
	SetReadDeadline(t time.Time) error

	// Secure reports whether this Transport already provides
	// confidentiality (TLS), so the Authenticator can relax minimum
	// cipher-strength requirements.
	Secure() bool

	// Stderr returns the transport's stderr stream, or nil if it has
	// none (only External and SSH variants do).
	Stderr() io.Reader
}
