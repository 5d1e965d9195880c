package transport

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"
)

// externalTransport connects to a user-supplied command over a pair of OS
// pipes: the child's stdin is our write side, its stdout is our read side,
// and its stderr is exposed separately so callers can surface diagnostics.
// It is never secure: spec requires the security flag to report "not
// secure" regardless of what the launched command does internally.
type externalTransport struct {
	cmd    *exec.Cmd
	in     *os.File
	out    *os.File
	errOut *os.File
}

// DialExternal launches command (argv[0] plus arguments) with no inherited
// capabilities, connecting it to the caller via a socket-pair-equivalent
// of two OS pipes, and a third pipe for stderr.
func DialExternal(command []string) (Transport, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("transport: external: empty command")
	}

	inR, inW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("transport: external: stdin pipe: %w", err)
	}
	outR, outW, err := os.Pipe()
	if err != nil {
		_ = inR.Close()
		_ = inW.Close()
		return nil, fmt.Errorf("transport: external: stdout pipe: %w", err)
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		_ = inR.Close()
		_ = inW.Close()
		_ = outR.Close()
		_ = outW.Close()
		return nil, fmt.Errorf("transport: external: stderr pipe: %w", err)
	}

	cmd := exec.Command(command[0], command[1:]...)
	cmd.Stdin = inR
	cmd.Stdout = outW
	cmd.Stderr = errW
	cmd.Env = nil // inherit no capabilities beyond the bare process environment

	if err := cmd.Start(); err != nil {
		_ = inR.Close()
		_ = inW.Close()
		_ = outR.Close()
		_ = outW.Close()
		_ = errR.Close()
		_ = errW.Close()
		return nil, fmt.Errorf("transport: external: start %s: %w", command[0], err)
	}

	// The child owns these ends now; close our copies so EOF propagates
	// correctly when the child exits.
	_ = inR.Close()
	_ = outW.Close()
	_ = errW.Close()

	return &externalTransport{cmd: cmd, in: inW, out: outR, errOut: errR}, nil
}

func (t *externalTransport) Read(p []byte) (int, error)  { return t.out.Read(p) }
func (t *externalTransport) Write(p []byte) (int, error) { return t.in.Write(p) }

func (t *externalTransport) SetReadDeadline(tm time.Time) error {
	return t.out.SetReadDeadline(tm)
}

func (t *externalTransport) Secure() bool { return false }

func (t *externalTransport) Stderr() io.Reader { return t.errOut }

func (t *externalTransport) Close() error {
	inErr := t.in.Close()
	outErr := t.out.Close()
	errErr := t.errOut.Close()
	_ = t.cmd.Process.Kill()
	_ = t.cmd.Wait()
	if inErr != nil {
		return inErr
	}
	if outErr != nil {
		return outErr
	}
	return errErr
}
