package config

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
)

// Default system socket paths. Real libvirt distinguishes a read-only and
// a read-write system socket so unprivileged callers can still query
// state; we keep the same split.
const (
	DefaultSystemSocketRW = "/var/run/libvirt/libvirt-sock"
	DefaultSystemSocketRO = "/var/run/libvirt/libvirt-sock-ro"
)

// ApplyDefaults fills any unspecified fields of cfg with built-in
// defaults. Zero values are replaced; explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyMetricsDefaults(&cfg.Metrics)
	applyConnectDefaults(&cfg.Connect)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
	applyProfilingDefaults(&cfg.Profiling)
}

func applyProfilingDefaults(cfg *ProfilingConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}
	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{"cpu", "alloc_objects", "alloc_space", "inuse_objects", "inuse_space", "goroutines"}
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

func applyConnectDefaults(cfg *ConnectConfig) {
	if cfg.PKIPath == "" {
		cfg.PKIPath = DefaultPKIPath()
	}
	if cfg.Auth == "" {
		cfg.Auth = ""
	}
	if cfg.StreamBufferCap == 0 {
		cfg.StreamBufferCap = DefaultStreamBufferCap
	}
	if cfg.Autostart == nil {
		enabled := true
		cfg.Autostart = &enabled
	}
}

// DefaultStreamBufferCap bounds a stream's incoming buffer when neither the
// config nor a per-Connection option overrides it.
const DefaultStreamBufferCap = 4 << 20 // 4 MiB

// DefaultPKIPath returns $HOME/.pki/libvirt if it exists, otherwise the
// system-wide default.
func DefaultPKIPath() string {
	if home, err := os.UserHomeDir(); err == nil {
		p := filepath.Join(home, ".pki", "libvirt")
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			return p
		}
	}
	return "/etc/pki/libvirt"
}

// DefaultCACertPath, DefaultClientCertPath, and DefaultClientKeyPath return
// the three well-known filenames under pkiPath.
func DefaultCACertPath(pkiPath string) string     { return filepath.Join(pkiPath, "cacert.pem") }
func DefaultClientCertPath(pkiPath string) string { return filepath.Join(pkiPath, "clientcert.pem") }
func DefaultClientKeyPath(pkiPath string) string  { return filepath.Join(pkiPath, "clientkey.pem") }

// DefaultSessionSocketPath returns the abstract UNIX socket path used for a
// per-user session instance: a leading '@' (null-prefixed abstract name)
// followed by a name derived from the caller's home directory, so that two
// users on the same host never collide on the same abstract name.
func DefaultSessionSocketPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = fmt.Sprintf("uid-%d", os.Getuid())
	}
	sum := sha256.Sum256([]byte(home))
	return fmt.Sprintf("@libvirt-sock-%x", sum[:8])
}

// GetDefaultConfig returns a Config with every field defaulted, useful for
// generating a sample file or for tests that don't load one.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
