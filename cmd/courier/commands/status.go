package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"courier/internal/app"
)

// status: print the local identity and the depth of each work queue.
func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the local identity and queue depths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := app.Open(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			me := a.LocalIdentity()
			dev := a.LocalDevice()
			fmt.Printf("Identity: %s (%s)\n", me.Principal, me.Authority)
			fmt.Printf("Device:   %s\n", dev.Name)

			toEncode, err := a.Objects.ObjectsToEncode(ctx)
			if err != nil {
				return err
			}
			toSend, err := a.Encoded.UnsentOutboundIDs(ctx)
			if err != nil {
				return err
			}
			toDecode, err := a.Encoded.NonDecodedInboundIDs(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("Queues:   %d to encode, %d to send, %d to decode\n",
				len(toEncode), len(toSend), len(toDecode))
			return nil
		},
	}
}
