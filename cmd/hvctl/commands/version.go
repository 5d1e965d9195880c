package commands

import (
	"context"
	"fmt"

	"github.com/kridian/hvrpc/cmd/hvctl/cmdutil"
	"github.com/kridian/hvrpc/pkg/virtapi"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the remote daemon's version",
	RunE:  runVersion,
}

func runVersion(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	conn, err := cmdutil.Connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	v, err := virtapi.New(conn).GetVersion(ctx)
	if err != nil {
		return fmt.Errorf("getting remote version: %w", err)
	}

	major := v / 1_000_000
	minor := (v / 1_000) % 1_000
	release := v % 1_000
	fmt.Printf("%d.%d.%d\n", major, minor, release)
	return nil
}
