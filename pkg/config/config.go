// Package config loads hvrpc's ambient configuration: logging, telemetry,
// metrics, and the connection defaults a URI does not itself specify
// (PKI paths, debug sink, daemon autostart).
//
// Configuration sources, in order of precedence:
//  1. CLI flags (when the caller binds them into the viper instance passed
//     to Load)
//  2. Environment variables (HVRPC_*, plus the three libvirt-compatible
//     names named in the URI spec: LIBVIRTD_PATH, LIBVIRT_AUTOSTART,
//     LIBVIRT_GNUTLS_DEBUG)
//  3. A YAML config file
//  4. Built-in defaults
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config is the top-level configuration for an hvrpc client.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	Connect   ConnectConfig   `mapstructure:"connect" yaml:"connect"`
}

// LoggingConfig controls log output behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
type TelemetryConfig struct {
	Enabled    bool    `mapstructure:"enabled" yaml:"enabled"`
	Endpoint   string  `mapstructure:"endpoint" yaml:"endpoint"`
	Insecure   bool    `mapstructure:"insecure" yaml:"insecure"`
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	Enabled      bool     `mapstructure:"enabled" yaml:"enabled"`
	Endpoint     string   `mapstructure:"endpoint" yaml:"endpoint"`
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// MetricsConfig configures the Prometheus metrics HTTP endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Port    int  `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// ConnectConfig holds defaults for establishing a Connection that a URI
// alone does not specify: PKI material, debug tracing, and local daemon
// autostart behavior.
type ConnectConfig struct {
	// PKIPath overrides the directory containing cacert.pem,
	// clientcert.pem, clientkey.pem. Corresponds to the `pkipath` URI
	// query parameter; this is the config-file/env-var default used when
	// the URI omits it.
	PKIPath string `mapstructure:"pkipath" yaml:"pkipath"`

	// NoVerify proceeds past a failed TLS peer verification instead of
	// aborting. Corresponds to the `no_verify` URI query parameter.
	NoVerify bool `mapstructure:"no_verify" yaml:"no_verify"`

	// Auth is the preferred authentication mechanism or family, used when
	// the URI omits an `auth` query parameter.
	Auth string `mapstructure:"auth" yaml:"auth"`

	// DebugSink names a stream ("stdout", "stderr") or file path to
	// receive a protocol trace. Empty disables tracing.
	DebugSink string `mapstructure:"debug" yaml:"debug"`

	// DaemonPath overrides the local daemon binary path, mirroring
	// LIBVIRTD_PATH.
	DaemonPath string `mapstructure:"daemon_path" yaml:"daemon_path"`

	// Autostart controls whether a missing local daemon is spawned on
	// connection refusal, mirroring LIBVIRT_AUTOSTART ("0" disables it).
	// A nil value means "not set"; ApplyDefaults resolves it to true.
	Autostart *bool `mapstructure:"autostart" yaml:"autostart"`

	// GnutlsDebugLevel mirrors LIBVIRT_GNUTLS_DEBUG: the TLS library's
	// log verbosity, 0 disables it.
	GnutlsDebugLevel int `mapstructure:"gnutls_debug" yaml:"gnutls_debug"`

	// StreamBufferCap bounds a stream's incoming buffer; exceeding it
	// surfaces a StreamError instead of growing unbounded.
	StreamBufferCap int `mapstructure:"stream_buffer_cap" validate:"omitempty,min=1" yaml:"stream_buffer_cap"`
}

// Load loads configuration from defaults, a file (if present), and
// environment variables, in that precedence order (lowest to highest
// among these three; CLI flags outrank all of them when the caller binds
// them into v before calling Load).
//
// v may be nil, in which case a fresh viper.Viper is used with no
// pre-bound flags.
func Load(v *viper.Viper, configPath string) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	setupViper(v, configPath)

	if _, err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	hook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(hook)); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	ApplyDefaults(&cfg)
	applyLibvirtCompatEnv(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks struct-tag constraints on cfg using go-playground/validator.
func Validate(cfg *Config) error {
	return validator.New().Struct(cfg)
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("HVRPC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(getConfigDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("config: read config file: %w", err)
	}
	return true, nil
}

// applyLibvirtCompatEnv applies the three environment variables named
// directly by the URI/transport spec, which take precedence over the
// HVRPC_CONNECT_* equivalents so existing libvirt deployments work
// unmodified.
func applyLibvirtCompatEnv(cfg *Config) {
	if v := os.Getenv("LIBVIRTD_PATH"); v != "" {
		cfg.Connect.DaemonPath = v
	}
	if v := os.Getenv("LIBVIRT_AUTOSTART"); v == "0" {
		disabled := false
		cfg.Connect.Autostart = &disabled
	}
	if v := os.Getenv("LIBVIRT_GNUTLS_DEBUG"); v != "" {
		var level int
		if _, err := fmt.Sscanf(v, "%d", &level); err == nil {
			cfg.Connect.GnutlsDebugLevel = level
		}
	}
}

// getConfigDir returns the directory searched for config.yaml, honoring
// XDG_CONFIG_HOME.
func getConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "hvrpc")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "hvrpc")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists reports whether a config file exists at the default
// location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}
