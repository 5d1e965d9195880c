// Package cmdutil provides shared helpers for hvctl's cobra commands.
package cmdutil

import (
	"context"
	"fmt"
	"os"

	"github.com/kridian/hvrpc/internal/auth"
	"github.com/kridian/hvrpc/internal/cliutil/prompt"
	"github.com/kridian/hvrpc/pkg/config"
	"github.com/kridian/hvrpc/pkg/hvrpc"
)

// Flags stores global flag values shared across subcommands.
var Flags = &GlobalFlags{}

// GlobalFlags holds the values of hvctl's persistent flags.
type GlobalFlags struct {
	ConnectURI string
	Output     string
	NoVerify   bool
}

// Connect opens a Connection to the URI selected by --connect (or its
// LIBVIRT_DEFAULT_URI-equivalent fallback), prompting interactively for
// any credential the authentication handshake asks for.
func Connect(ctx context.Context) (*hvrpc.Connection, error) {
	return ConnectWithEvents(ctx, nil)
}

// ConnectWithEvents is Connect, additionally registering onEvent as the
// Connection's server-pushed event callback (commands that watch for
// lifecycle notifications need this; a plain RPC command does not).
func ConnectWithEvents(ctx context.Context, onEvent hvrpc.EventCallback) (*hvrpc.Connection, error) {
	uri := Flags.ConnectURI
	if uri == "" {
		uri = os.Getenv("HVRPC_CONNECT_URI")
	}
	if uri == "" {
		return nil, fmt.Errorf("no connection URI: pass --connect or set HVRPC_CONNECT_URI")
	}

	creds := &auth.CallbackCredentials{
		Prompt: func(label string) (string, error) {
			if label == "Password" {
				return prompt.Password(label)
			}
			return prompt.Input(label, "")
		},
	}

	opts := hvrpc.OpenOptions{Credentials: creds}
	if Flags.NoVerify {
		defaults := config.GetDefaultConfig().Connect
		defaults.NoVerify = true
		opts.Defaults = &defaults
	}
	if onEvent != nil {
		opts.ConnOptions = append(opts.ConnOptions, hvrpc.WithEventCallback(onEvent))
	}
	conn, err := hvrpc.Open(ctx, uri, opts)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", uri, err)
	}
	return conn, nil
}
