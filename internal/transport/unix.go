package transport

import (
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/kridian/hvrpc/internal/logger"
)

// AutostartConfig controls spawning a local daemon when a UNIX connection
// is refused, per spec's "retry after spawning a local daemon with an
// idle-exit timeout; bounded retries with linear backoff".
type AutostartConfig struct {
	Enabled     bool
	DaemonPath  string
	DaemonArgs  []string
	IdleTimeout time.Duration

	MaxRetries int
	BaseDelay  time.Duration
}

// DefaultAutostartConfig returns the retry policy used when the caller
// doesn't override it: five attempts, 200ms linear backoff step.
func DefaultAutostartConfig() AutostartConfig {
	return AutostartConfig{
		MaxRetries:  5,
		BaseDelay:   200 * time.Millisecond,
		IdleTimeout: 30 * time.Second,
	}
}

// DialUnix connects to a named or abstract UNIX socket path. A leading '@'
// denotes an abstract socket name (a null byte is substituted for it on
// platforms that support the abstract namespace).
func DialUnix(path string, autostart AutostartConfig) (Transport, error) {
	addr := resolveUnixPath(path)

	conn, err := net.DialUnix("unix", nil, &net.UnixAddr{Name: addr, Net: "unix"})
	if err == nil {
		return &connTransport{Conn: conn}, nil
	}
	if !autostart.Enabled || !isRefused(err) {
		return nil, fmt.Errorf("transport: dial unix %s: %w", path, err)
	}

	if err := spawnDaemon(autostart); err != nil {
		return nil, fmt.Errorf("transport: autostart daemon: %w", err)
	}
	return retryDialUnix(addr, path, autostart)
}

// resolveUnixPath maps a leading '@' to the Linux abstract-namespace
// encoding (a NUL byte in the first position of the socket address).
func resolveUnixPath(path string) string {
	if strings.HasPrefix(path, "@") {
		return "\x00" + path[1:]
	}
	return path
}

func isRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, os.ErrNotExist)
}

func retryDialUnix(addr, originalPath string, autostart AutostartConfig) (Transport, error) {
	delay := autostart.BaseDelay
	var lastErr error
	for attempt := 1; attempt <= autostart.MaxRetries; attempt++ {
		time.Sleep(delay)
		conn, err := net.DialUnix("unix", nil, &net.UnixAddr{Name: addr, Net: "unix"})
		if err == nil {
			return &connTransport{Conn: conn}, nil
		}
		lastErr = err
		logger.Debug("transport: unix dial retry failed", "attempt", attempt, "path", originalPath, "error", err)
		delay += autostart.BaseDelay
	}
	return nil, fmt.Errorf("transport: dial unix %s: daemon did not become reachable after %d attempts: %w", originalPath, autostart.MaxRetries, lastErr)
}

func spawnDaemon(cfg AutostartConfig) error {
	if cfg.DaemonPath == "" {
		return fmt.Errorf("no daemon path configured")
	}
	args := append([]string{}, cfg.DaemonArgs...)
	if cfg.IdleTimeout > 0 {
		args = append(args, fmt.Sprintf("--timeout=%d", int(cfg.IdleTimeout.Seconds())))
	}
	cmd := exec.Command(cfg.DaemonPath, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("spawn %s: %w", cfg.DaemonPath, err)
	}
	// The daemon detaches and manages its own lifetime; we don't wait on it.
	go func() { _ = cmd.Wait() }()
	return nil
}
