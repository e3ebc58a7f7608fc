package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	CommitSHA = "none"
	BuildDate = "unknown"
)

type rootFlags struct {
	envFile string
	debug   bool
}

func NewRootCmd() *cobra.Command {
	var flags rootFlags

	root := &cobra.Command{
		Use:           "tablestaff",
		Short:         "TableBookings staff client: review and act on restaurant reservations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "dotenv file loaded before the environment")
	root.PersistentFlags().BoolVar(&flags.debug, "debug", false, "log requests and poll cycles")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newKeysCmd())
	root.AddCommand(newLoginCmd(&flags))
	root.AddCommand(newLogoutCmd(&flags))
	root.AddCommand(newWhoamiCmd(&flags))
	root.AddCommand(newReservationsCmd(&flags))
	root.AddCommand(newReservationCmd(&flags))
	root.AddCommand(newProfileCmd(&flags))
	root.AddCommand(newWatchCmd(&flags))
	root.AddCommand(newServerCmd(&flags))
	root.AddCommand(newActivityCmd(&flags))

	return root
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
