package hvrpc

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kridian/hvrpc/internal/auth"
	"github.com/kridian/hvrpc/internal/telemetry"
	"github.com/kridian/hvrpc/internal/transport"
	"github.com/kridian/hvrpc/pkg/config"
)

// kind is one of the five transports a URI can select.
type kind string

const (
	kindTLS  kind = "tls"
	kindTCP  kind = "tcp"
	kindUnix kind = "unix"
	kindSSH  kind = "ssh"
	kindExt  kind = "ext"
)

// DialTimeout bounds TCP/TLS connect attempts; URIs have no way to
// override it today.
const DialTimeout = 30 * time.Second

// OpenOptions carries everything Open needs beyond the URI itself:
// credentials for the authentication handshake and ambient defaults that
// a bare URI doesn't specify.
type OpenOptions struct {
	Credentials auth.Credentials
	Defaults    *config.ConnectConfig
	ConnOptions []Option
}

// Open parses uri per spec.md §6's grammar, establishes the selected
// transport, runs the authentication handshake, and returns a Connection
// ready for Call/OpenStream.
func Open(ctx context.Context, rawURI string, opts OpenOptions) (*Connection, error) {
	ctx, span := telemetry.StartConnectionSpan(ctx, telemetry.SpanConnectionOpen, rawURI)
	defer span.End()

	parsed, err := parseURI(rawURI)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return nil, err
	}
	if opts.Defaults == nil {
		opts.Defaults = &config.GetDefaultConfig().Connect
	}

	telemetry.SetAttributes(ctx, telemetry.Transport(string(parsed.transport)))

	t, secure, err := dial(parsed, opts.Defaults)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return nil, err
	}
	telemetry.SetAttributes(ctx, telemetry.Secure(secure))

	connOpts := opts.ConnOptions
	if opts.Defaults.StreamBufferCap > 0 {
		connOpts = append([]Option{WithStreamBufferCap(opts.Defaults.StreamBufferCap)}, connOpts...)
	}
	if bufCap := parsed.query.Get("stream_buffer_cap"); bufCap != "" {
		if n, err := strconv.Atoi(bufCap); err == nil && n > 0 {
			connOpts = append(connOpts, WithStreamBufferCap(n))
		}
	}

	// secure (from dial) reports whether the raw transport itself already
	// provides confidentiality; c starts with the plain transport and
	// picks up a SecurityLayer, if any, once negotiateAuth completes.
	c := newConnection(t, nil, connOpts...)

	preferred := parsed.query.Get("auth")
	if preferred == "" {
		preferred = opts.Defaults.Auth
	}
	creds := opts.Credentials
	if creds == nil {
		creds = auth.StaticCredentials{}
	}
	layer, err := negotiateAuth(ctx, c, preferred, parsed.transport == kindUnix, creds)
	if err != nil {
		telemetry.RecordError(ctx, err)
		_ = t.Close()
		return nil, err
	}
	c.installSecurityLayer(layer)
	c.finishOpening()

	return c, nil
}

// parsedURI is the decomposed form of spec.md §6's grammar:
// <driver>[+<transport>]://[<user>@][<host>[:<port>]][/<path>][?<query>]
type parsedURI struct {
	driver    string
	transport kind
	user      string
	host      string
	port      int
	path      string
	query     url.Values
}

func parseURI(raw string) (*parsedURI, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("malformed uri: %v", err)}
	}
	if u.Scheme == "" {
		return nil, &ConfigurationError{Reason: "missing scheme"}
	}

	driver, transportName, _ := strings.Cut(u.Scheme, "+")

	p := &parsedURI{driver: driver, path: u.Path, query: u.Query()}
	if u.User != nil {
		p.user = u.User.Username()
	}
	p.host = u.Hostname()
	if portStr := u.Port(); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, &ConfigurationError{Reason: fmt.Sprintf("invalid port %q", portStr)}
		}
		p.port = port
	}

	if transportName == "" {
		if p.host != "" {
			p.transport = kindTLS
		} else {
			p.transport = kindUnix
		}
	} else {
		switch kind(transportName) {
		case kindTLS, kindTCP, kindUnix, kindSSH, kindExt:
			p.transport = kind(transportName)
		default:
			return nil, &ConfigurationError{Reason: fmt.Sprintf("unknown transport %q", transportName)}
		}
	}

	return p, nil
}

// dial establishes the transport a parsedURI selects. It also returns
// whether the transport is already secure (TLS, or a local UNIX socket by
// convention); Open records this on its trace span only, and no minimum
// cipher strength is enforced during authentication on any transport.
func dial(p *parsedURI, defaults *config.ConnectConfig) (transport.Transport, bool, error) {
	switch p.transport {
	case kindTCP:
		return dialTCP(p)
	case kindTLS:
		return dialTLS(p, defaults)
	case kindUnix:
		return dialUnix(p, defaults)
	case kindSSH:
		return dialSSH(p)
	case kindExt:
		return dialExt(p)
	default:
		return nil, false, &ConfigurationError{Reason: fmt.Sprintf("unhandled transport %q", p.transport)}
	}
}

func dialTCP(p *parsedURI) (transport.Transport, bool, error) {
	addr := hostPort(p, 16509)
	t, err := transport.DialTCP(addr, DialTimeout)
	if err != nil {
		return nil, false, &TransportError{Op: "dial", Err: err}
	}
	return t, false, nil
}

func dialTLS(p *parsedURI, defaults *config.ConnectConfig) (transport.Transport, bool, error) {
	addr := hostPort(p, 16514)

	pkiPath := p.query.Get("pkipath")
	if pkiPath == "" {
		pkiPath = defaults.PKIPath
	}
	if pkiPath == "" {
		pkiPath = config.DefaultPKIPath()
	}

	noVerify := defaults.NoVerify
	if v := p.query.Get("no_verify"); v != "" {
		noVerify = v != "0"
	}

	cfg := transport.TLSConfig{ServerName: p.host, NoVerify: noVerify}
	if !noVerify {
		pool, err := loadCACert(pkiPath)
		if err != nil {
			return nil, false, err
		}
		cfg.RootCAs = pool
	}
	if cert, ok, err := loadClientCert(pkiPath); err != nil {
		return nil, false, err
	} else if ok {
		cfg.Certificates = []tls.Certificate{cert}
	}

	t, err := transport.DialTLS(addr, DialTimeout, cfg)
	if err != nil {
		return nil, false, &TransportError{Op: "dial", Err: err}
	}
	return t, true, nil
}

func loadCACert(pkiPath string) (*x509.CertPool, error) {
	caPEM, err := os.ReadFile(config.DefaultCACertPath(pkiPath))
	if err != nil {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("reading CA certificate: %v", err)}
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, &ConfigurationError{Reason: "no valid certificates in CA file"}
	}
	return pool, nil
}

// loadClientCert loads the optional mutual-TLS client certificate/key
// pair. Absence of either file is not an error: not every deployment
// requires client certificates.
func loadClientCert(pkiPath string) (tls.Certificate, bool, error) {
	certPath := config.DefaultClientCertPath(pkiPath)
	keyPath := config.DefaultClientKeyPath(pkiPath)
	if _, err := os.Stat(certPath); err != nil {
		return tls.Certificate{}, false, nil
	}
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return tls.Certificate{}, false, &ConfigurationError{Reason: fmt.Sprintf("loading client certificate: %v", err)}
	}
	return cert, true, nil
}

func dialUnix(p *parsedURI, defaults *config.ConnectConfig) (transport.Transport, bool, error) {
	socketPath := p.query.Get("socket")
	if socketPath == "" {
		socketPath = p.path
	}
	if socketPath == "" {
		socketPath = config.DefaultSessionSocketPath()
	}

	autostart := transport.DefaultAutostartConfig()
	autostart.Enabled = defaults.Autostart == nil || *defaults.Autostart
	autostart.DaemonPath = defaults.DaemonPath
	if envPath := os.Getenv("LIBVIRTD_PATH"); envPath != "" {
		autostart.DaemonPath = envPath
	}
	if os.Getenv("LIBVIRT_AUTOSTART") == "0" {
		autostart.Enabled = false
	}

	t, err := transport.DialUnix(socketPath, autostart)
	if err != nil {
		return nil, false, &TransportError{Op: "dial", Err: err}
	}
	return t, true, nil
}

func dialSSH(p *parsedURI) (transport.Transport, bool, error) {
	opts := transport.SSHOptions{
		Host:       p.host,
		User:       p.user,
		SocketPath: p.query.Get("socket"),
		NetcatPath: p.query.Get("netcat"),
		NoTTY:      p.query.Get("no_tty") != "" && p.query.Get("no_tty") != "0",
	}
	if p.port != 0 {
		opts.Port = p.port
	}
	t, err := transport.DialSSH(opts)
	if err != nil {
		return nil, false, &TransportError{Op: "dial", Err: err}
	}
	return t, false, nil
}

func dialExt(p *parsedURI) (transport.Transport, bool, error) {
	command := p.query.Get("command")
	if command == "" {
		return nil, false, &ConfigurationError{Reason: "external transport requires a command query parameter"}
	}
	t, err := transport.DialExternal(strings.Fields(command))
	if err != nil {
		return nil, false, &TransportError{Op: "dial", Err: err}
	}
	return t, false, nil
}

func hostPort(p *parsedURI, defaultPort int) string {
	port := defaultPort
	if p.port != 0 {
		port = p.port
	}
	return fmt.Sprintf("%s:%d", p.host, port)
}
