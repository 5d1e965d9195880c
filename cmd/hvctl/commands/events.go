package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kridian/hvrpc/cmd/hvctl/cmdutil"
	"github.com/kridian/hvrpc/pkg/hvrpc"
	"github.com/kridian/hvrpc/pkg/virtapi"
	"github.com/spf13/cobra"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Stream domain lifecycle events until interrupted",
	RunE:  runEvents,
}

func runEvents(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	conn, err := cmdutil.ConnectWithEvents(ctx, func(ev hvrpc.Event) {
		d, ok, err := virtapi.DecodeDomainEvent(ev)
		if err != nil {
			fmt.Fprintf(os.Stderr, "hvctl: decoding event: %v\n", err)
			return
		}
		if !ok {
			return
		}
		fmt.Printf("domain %s (id %d): event=%d detail=%d\n", d.Name, d.ID, d.Event, d.Detail)
	})
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Println("Watching for domain events. Press Ctrl+C to stop.")
	<-ctx.Done()
	return nil
}
