package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/tablestaff/internal/confirm"
	"github.com/example/tablestaff/internal/reservation"
)

func newReservationsCmd(flags *rootFlags) *cobra.Command {
	var view string

	c := &cobra.Command{
		Use:   "reservations",
		Short: "List today's and upcoming reservations",
		RunE: func(cmd *cobra.Command, args []string) error {
			var bucket reservation.Bucket
			if view != "all" {
				b, err := reservation.ParseBucket(view)
				if err != nil {
					return fmt.Errorf("invalid --view %q (want today, upcoming or all)", view)
				}
				bucket = b
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.requireLogin(); err != nil {
				return err
			}

			rs, err := a.repo.ListReservations(ctx)
			if err != nil {
				return err
			}
			now := time.Now()
			today, upcoming := reservation.Count(rs, now, a.log).TabLabels()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s  %s\n\n", today, upcoming)

			switch bucket {
			case "":
				printReservations(out, reservation.Current(rs, now, a.log))
			default:
				printReservations(out, reservation.Filter(rs, bucket, now, a.log))
			}
			return nil
		},
	}

	c.Flags().StringVar(&view, "view", "today", "today, upcoming or all")
	return c
}

func printReservations(w io.Writer, rs []reservation.Reservation) {
	if len(rs) == 0 {
		fmt.Fprintln(w, "no reservations")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tTIME\tGUESTS\tNAME\tTABLE\tSTATUS\tACTIONS")
	for _, r := range rs {
		var acts []string
		for _, a := range r.Actions() {
			acts = append(acts, string(a))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
			r.ID, r.Date, r.Time, r.PartySize, displayName(r.Guest.Name()), displayName(r.Table.Name), r.Status.Label(), displayName(strings.Join(acts, ",")))
	}
	_ = tw.Flush()
}

func newReservationCmd(flags *rootFlags) *cobra.Command {
	var yes bool

	c := &cobra.Command{
		Use:   "reservation <accept|reject|cancel|checkin|checkout> <id>",
		Short: "Apply a staff action to a reservation after confirmation",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			action, err := reservation.ParseAction(args[0])
			if err != nil {
				return err
			}
			id := args[1]

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

			rs, err := a.repo.ListReservations(ctx)
			if err != nil {
				return err
			}
			var res reservation.Reservation
			for _, r := range rs {
				if r.ID == id {
					res = r
					break
				}
			}
			if res.ID == "" {
				return fmt.Errorf("reservation %s not found", id)
			}

			flow := &confirm.Flow{Transitioner: a.repo, Session: a.session, Log: a.log}
			if a.activity != nil {
				flow.Recorder = a.activity
			}
			p, err := flow.Prompt(res, action)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !yes {
				ok, err := ask(cmd.InOrStdin(), out, p.Title+"\n"+p.Message+" [y/N] ")
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(out, "aborted")
					return nil
				}
			}

			updated, err := flow.Confirm(ctx, p)
			if err != nil {
				if errors.Is(err, confirm.ErrInFlight) {
					return fmt.Errorf("%s is already being processed", id)
				}
				return err
			}
			fmt.Fprintf(out, "reservation %s is now %s\n", updated.ID, updated.Status.Label())
			return nil
		},
	}

	c.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return c
}

func ask(in io.Reader, out io.Writer, question string) (bool, error) {
	fmt.Fprint(out, question)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}
