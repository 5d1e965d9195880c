// Package commands implements hvctl's cobra subcommands.
package commands

import (
	"github.com/kridian/hvrpc/cmd/hvctl/cmdutil"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "hvctl",
	Short: "hvctl - remote hypervisor management client",
	Long: `hvctl connects to a remote hypervisor management daemon over
hvrpc, the same transport/authentication/framing scheme libvirt's
virNetClient implements, and issues a handful of read-only RPCs against it.

Use "hvctl [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called once from main.main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cmdutil.Flags.ConnectURI, "connect", "", "connection URI, e.g. qemu+tls://host/system")
	rootCmd.PersistentFlags().StringVarP(&cmdutil.Flags.Output, "output", "o", "table", "output format: table, json, yaml")
	rootCmd.PersistentFlags().BoolVar(&cmdutil.Flags.NoVerify, "no-verify", false, "proceed despite TLS verification failure")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(completionCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
