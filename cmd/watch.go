package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/tablestaff/internal/notify"
	"github.com/example/tablestaff/internal/poller"
	"github.com/example/tablestaff/internal/reservation"
	"github.com/example/tablestaff/internal/session"
)

func newWatchCmd(flags *rootFlags) *cobra.Command {
	var (
		view          string
		allowNotifies bool
	)

	c := &cobra.Command{
		Use:   "watch",
		Short: "Poll for reservations and ring on new arrivals until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			var bucket reservation.Bucket
			if view != "all" {
				b, err := reservation.ParseBucket(view)
				if err != nil {
					return fmt.Errorf("invalid --view %q (want today, upcoming or all)", view)
				}
				bucket = b
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := newApp(ctx, flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.requireLogin(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			local := notify.NewLocal(a.log, notify.WriterSink{W: out}, notify.LogSink{Log: a.log})
			local.SetForeground(true)
			if allowNotifies {
				local.SetPermission(true)
			} else {
				local.RequestPermission(func() bool {
					ok, _ := ask(cmd.InOrStdin(), out, "Show a notification for new reservations? [y/N] ")
					return ok
				})
			}

			ctl := &poller.Controller{
				Source:   a.repo,
				Session:  a.session,
				Bucket:   bucket,
				Interval: a.cfg.PollInterval,
				Notifier: local,
				Log:      a.log,
				OnUpdate: func(s poller.Snapshot) { printCycle(out, s) },
			}
			// watch for logout before the first poll can trigger one
			stopped := make(chan struct{})
			var once sync.Once
			unsub := a.session.Subscribe(func(st session.State) {
				if !st.Authenticated {
					once.Do(func() { close(stopped) })
				}
			})
			defer unsub()

			fmt.Fprintf(out, "watching every %s, ctrl-c to stop\n", a.cfg.PollInterval)
			ctl.Activate(ctx)
			defer ctl.Deactivate()

			select {
			case <-ctx.Done():
				return nil
			case <-stopped:
				return fmt.Errorf("session ended, run `tablestaff login` again")
			}
		},
	}

	c.Flags().StringVar(&view, "view", "all", "today, upcoming or all")
	c.Flags().BoolVar(&allowNotifies, "notify", false, "allow notifications without asking")
	return c
}

func printCycle(w io.Writer, s poller.Snapshot) {
	stamp := s.FetchedAt
	if stamp.IsZero() {
		stamp = time.Now()
	}
	today, upcoming := s.Counts.TabLabels()
	line := fmt.Sprintf("[%s] %s %s", stamp.Format("15:04:05"), today, upcoming)
	if len(s.NewIDs) > 0 {
		line += " new: " + strings.Join(s.NewIDs, ",")
	}
	if s.Err != nil {
		line += " (refresh failed: " + s.Err.Error() + ")"
	}
	fmt.Fprintln(w, line)
}
