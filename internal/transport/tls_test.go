package transport

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"testing"
	"time"
)

func generateTestCert(t *testing.T, hostname string) (tls.Certificate, *x509.CertPool) {
	t.Helper()

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: hostname},
		DNSNames:     []string{hostname},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IsCA:         true,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &priv.PublicKey, priv)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	cert := tls.Certificate{Certificate: [][]byte{der}, PrivateKey: priv}

	parsed, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parse certificate: %v", err)
	}
	pool := x509.NewCertPool()
	pool.AddCert(parsed)
	return cert, pool
}

func serveOneTLSConnection(t *testing.T, ln net.Listener, serverCert tls.Certificate, confirm byte) {
	t.Helper()
	go func() {
		raw, err := ln.Accept()
		if err != nil {
			return
		}
		tlsConn := tls.Server(raw, &tls.Config{Certificates: []tls.Certificate{serverCert}})
		defer tlsConn.Close()
		if err := tlsConn.Handshake(); err != nil {
			return
		}
		tlsConn.Write([]byte{confirm})
	}()
}

func TestDialTLSSucceedsWithTrustedCertAndConfirmation(t *testing.T) {
	cert, pool := generateTestCert(t, "hv.example.test")
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	serveOneTLSConnection(t, ln, cert, handshakeConfirmation)

	tr, err := DialTLS(ln.Addr().String(), time.Second, TLSConfig{
		ServerName: "hv.example.test",
		RootCAs:    pool,
	})
	if err != nil {
		t.Fatalf("DialTLS: %v", err)
	}
	defer tr.Close()
	if !tr.Secure() {
		t.Fatal("TLS transport did not report secure")
	}
}

func TestDialTLSRejectsBadConfirmationByte(t *testing.T) {
	cert, pool := generateTestCert(t, "hv.example.test")
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	serveOneTLSConnection(t, ln, cert, 0xFF)

	_, err = DialTLS(ln.Addr().String(), time.Second, TLSConfig{
		ServerName: "hv.example.test",
		RootCAs:    pool,
	})
	if err == nil {
		t.Fatal("expected an error for a bad confirmation byte")
	}
}

func TestDialTLSRejectsUntrustedCertificate(t *testing.T) {
	cert, _ := generateTestCert(t, "hv.example.test")
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	serveOneTLSConnection(t, ln, cert, handshakeConfirmation)

	_, pool := generateTestCert(t, "someone-else.test") // unrelated root, won't sign the server's leaf
	_, err = DialTLS(ln.Addr().String(), time.Second, TLSConfig{
		ServerName: "hv.example.test",
		RootCAs:    pool,
	})
	if err == nil {
		t.Fatal("expected an error for an untrusted certificate")
	}
}

func TestDialTLSNoVerifyProceedsDespiteUntrustedCert(t *testing.T) {
	cert, _ := generateTestCert(t, "hv.example.test")
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	serveOneTLSConnection(t, ln, cert, handshakeConfirmation)

	tr, err := DialTLS(ln.Addr().String(), time.Second, TLSConfig{
		ServerName: "hv.example.test",
		NoVerify:   true,
	})
	if err != nil {
		t.Fatalf("DialTLS with NoVerify: %v", err)
	}
	tr.Close()
}
