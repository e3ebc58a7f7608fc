package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newProfileCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "profile",
		Short: "Show the restaurant profile and available slots",
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

			p, err := a.repo.RestaurantProfile(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s\n", displayName(p.Name, p.ID))
			fmt.Fprintf(out, "address: %s %s\n", p.Address, p.PostCode)
			fmt.Fprintf(out, "phone:   %s\n", p.Phone)
			fmt.Fprintf(out, "email:   %s\n", p.Email)
			fmt.Fprintf(out, "website: %s\n", p.Website)
			fmt.Fprintln(out, "available slots:")
			days := p.Weekdays()
			if len(days) == 0 {
				fmt.Fprintln(out, "  no slots")
			}
			for _, d := range days {
				fmt.Fprintf(out, "  %s:", d)
				if len(p.Slots[d]) == 0 {
					fmt.Fprint(out, " no slots")
				}
				for _, s := range p.Slots[d] {
					fmt.Fprintf(out, " %s-%s", s.Start, s.End)
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}
}
