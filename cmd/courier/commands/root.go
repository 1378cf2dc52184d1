package commands

import (
	"github.com/spf13/cobra"

	"courier/internal/app"
)

var (
	home    string
	verbose bool
	cfg     app.Config
)

func Execute() error {
	root := &cobra.Command{
		Use:           "courier",
		Short:         "Asynchronous end-to-end encrypted transport node",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			c, err := app.LoadConfig(home)
			if err != nil {
				return err
			}
			if verbose {
				c.Verbose = true
			}
			cfg = c
			return nil
		},
	}

	root.PersistentFlags().StringVar(&home, "home", "", "data dir (default ~/.courier)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "development logging")

	root.AddCommand(initCmd(), statusCmd(), feedCmd(), gcCmd())
	return root.Execute()
}
