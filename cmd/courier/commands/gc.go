package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"courier/internal/app"
)

// gc: drop processed ciphertexts older than the retention window. The
// plaintext objects decoded from them are untouched.
func gcCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gc",
		Short: "Delete processed ciphertexts past the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := app.Open(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			cutoff := a.Clock.Now().Add(-cfg.Retention())
			n, err := a.Encoded.DeleteProcessedOlderThan(ctx, cutoff)
			if err != nil {
				return err
			}
			fmt.Printf("Deleted %d processed messages older than %s.\n", n, cutoff.Format(time.RFC3339))
			return nil
		},
	}
}
