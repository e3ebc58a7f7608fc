package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newActivityCmd(flags *rootFlags) *cobra.Command {
	var limit int

	c := &cobra.Command{
		Use:   "activity",
		Short: "List recently confirmed actions (requires DATABASE_URL)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.requireLogin(); err != nil {
				return err
			}
			if err := a.openActivity(ctx); err != nil {
				return err
			}
			if a.activity == nil {
				return fmt.Errorf("activity log is off: set DATABASE_URL")
			}

			es, err := a.activity.Recent(ctx, a.session.Snapshot().RestaurantID(), limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "WHEN\tRESERVATION\tACTION\tFROM\tOUTCOME")
			for _, e := range es {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					e.ActedAt.Format("02/01/2006 15:04"), e.ReservationID, e.Action, e.FromStatus, e.Outcome())
			}
			return tw.Flush()
		},
	}

	c.Flags().IntVar(&limit, "limit", 20, "number of entries")
	return c
}
