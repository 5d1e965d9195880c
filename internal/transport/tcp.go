package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net"
	"time"
)

// connTransport wraps a net.Conn that already speaks the byte-pipe
// contract natively (plain TCP or TLS-over-TCP).
type connTransport struct {
	net.Conn
	secure bool
}

func (c *connTransport) Secure() bool    { return c.secure }
func (c *connTransport) Stderr() io.Reader { return nil }

// DialTCP resolves addr (host:port, address-family agnostic) and connects
// to the first address that accepts, disabling Nagle's algorithm so small
// RPC frames aren't delayed waiting for a full segment.
func DialTCP(addr string, timeout time.Duration) (Transport, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("transport: dial tcp %s: %w", addr, err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	return &connTransport{Conn: conn}, nil
}

// TLSConfig carries the verification policy for a TLS transport.
type TLSConfig struct {
	// ServerName is the hostname used both for SNI and for leaf
	// certificate subject matching.
	ServerName string
	// RootCAs holds the already-loaded CA certificates used to verify
	// the server. Certificates holds the client certificate/key pair and
	// is optional (mutual TLS only).
	RootCAs            *x509.CertPool
	Certificates       []tls.Certificate
	NoVerify           bool
	MinVersion         uint16
}

// handshakeConfirmation is the single byte the server sends after a
// successful TLS handshake to confirm it accepted the client certificate.
const handshakeConfirmation = 0x01

// DialTLS connects to addr over TCP, performs a TLS handshake per cfg, and
// reads the server's single confirmation byte. Any other byte, or a
// handshake/certificate failure when NoVerify is false, is fatal.
func DialTLS(addr string, timeout time.Duration, cfg TLSConfig) (Transport, error) {
	raw, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("transport: dial tcp %s: %w", addr, err)
	}
	if tc, ok := raw.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}

	tlsCfg := &tls.Config{
		ServerName:         cfg.ServerName,
		RootCAs:            cfg.RootCAs,
		Certificates:       cfg.Certificates,
		InsecureSkipVerify: cfg.NoVerify,
		MinVersion:         cfg.MinVersion,
	}
	if tlsCfg.MinVersion == 0 {
		tlsCfg.MinVersion = tls.VersionTLS12
	}

	tlsConn := tls.Client(raw, tlsCfg)
	if err := tlsConn.HandshakeContext(context.Background()); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("transport: tls handshake with %s: %w", cfg.ServerName, err)
	}
	if !cfg.NoVerify {
		if err := verifyPeerCertificate(tlsConn, cfg); err != nil {
			_ = tlsConn.Close()
			return nil, err
		}
	}

	var confirm [1]byte
	if _, err := io.ReadFull(tlsConn, confirm[:]); err != nil {
		_ = tlsConn.Close()
		return nil, fmt.Errorf("transport: reading tls confirmation byte: %w", err)
	}
	if confirm[0] != handshakeConfirmation {
		_ = tlsConn.Close()
		return nil, fmt.Errorf("transport: server rejected client certificate (confirmation byte 0x%02x)", confirm[0])
	}

	return &connTransport{Conn: tlsConn, secure: true}, nil
}

// verifyPeerCertificate re-checks the trust path, validity window, and
// hostname match explicitly so the caller gets a typed, specific error
// rather than whatever crypto/tls's handshake-time verifier produced.
func verifyPeerCertificate(conn *tls.Conn, cfg TLSConfig) error {
	state := conn.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return fmt.Errorf("transport: no peer certificate presented")
	}
	leaf := state.PeerCertificates[0]

	now := time.Now()
	if now.Before(leaf.NotBefore) || now.After(leaf.NotAfter) {
		return fmt.Errorf("transport: peer certificate outside validity window (%s - %s)", leaf.NotBefore, leaf.NotAfter)
	}

	opts := x509.VerifyOptions{
		DNSName:       cfg.ServerName,
		Roots:         cfg.RootCAs,
		Intermediates: x509.NewCertPool(),
	}
	for _, cert := range state.PeerCertificates[1:] {
		opts.Intermediates.AddCert(cert)
	}
	if _, err := leaf.Verify(opts); err != nil {
		return fmt.Errorf("transport: peer certificate chain for %s: %w", cfg.ServerName, err)
	}
	return nil
}
