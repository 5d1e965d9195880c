package commands

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/kridian/hvrpc/cmd/hvctl/cmdutil"
	"github.com/kridian/hvrpc/internal/cliutil/output"
	"github.com/kridian/hvrpc/pkg/virtapi"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List domains known to the remote daemon",
	RunE:  runList,
}

// domainTable renders []virtapi.Domain as a table per internal/cliutil/output's
// TableRenderer contract.
type domainTable []virtapi.Domain

func (d domainTable) Headers() []string { return []string{"ID", "NAME", "UUID"} }

func (d domainTable) Rows() [][]string {
	rows := make([][]string, 0, len(d))
	for _, dom := range d {
		rows = append(rows, []string{fmt.Sprintf("%d", dom.ID), dom.Name, hex.EncodeToString(dom.UUID[:])})
	}
	return rows
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	conn, err := cmdutil.Connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	domains, err := virtapi.New(conn).ListDomains(ctx)
	if err != nil {
		return fmt.Errorf("listing domains: %w", err)
	}

	format, err := output.ParseFormat(cmdutil.Flags.Output)
	if err != nil {
		return err
	}
	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, domains)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, domains)
	default:
		if len(domains) == 0 {
			fmt.Println("No domains found.")
			return nil
		}
		return output.PrintTable(os.Stdout, domainTable(domains))
	}
}
