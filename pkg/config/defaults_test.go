package config

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultCertPathsUnderPKIPath(t *testing.T) {
	pki := "/etc/pki/libvirt"
	if got := DefaultCACertPath(pki); got != filepath.Join(pki, "cacert.pem") {
		t.Errorf("DefaultCACertPath = %q", got)
	}
	if got := DefaultClientCertPath(pki); got != filepath.Join(pki, "clientcert.pem") {
		t.Errorf("DefaultClientCertPath = %q", got)
	}
	if got := DefaultClientKeyPath(pki); got != filepath.Join(pki, "clientkey.pem") {
		t.Errorf("DefaultClientKeyPath = %q", got)
	}
}

func TestDefaultSessionSocketPathIsAbstractAndStable(t *testing.T) {
	a := DefaultSessionSocketPath()
	b := DefaultSessionSocketPath()
	if a != b {
		t.Fatalf("session socket path not stable: %q vs %q", a, b)
	}
	if !strings.HasPrefix(a, "@") {
		t.Fatalf("session socket path %q should be an abstract name (leading @)", a)
	}
}

func TestGetDefaultConfigIsFullyPopulated(t *testing.T) {
	cfg := GetDefaultConfig()
	if cfg.Connect.PKIPath == "" {
		t.Error("PKIPath should default to a non-empty path")
	}
	if cfg.Connect.Autostart == nil {
		t.Error("Autostart should be resolved to non-nil by ApplyDefaults")
	}
	if cfg.Logging.Level == "" || cfg.Telemetry.Endpoint == "" {
		t.Error("ApplyDefaults should fill logging and telemetry defaults")
	}
}
