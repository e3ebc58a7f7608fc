package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/example/tablestaff/internal/auth"
	"github.com/example/tablestaff/internal/confirm"
	"github.com/example/tablestaff/internal/lib/logger/sl"
	"github.com/example/tablestaff/internal/notify"
	"github.com/example/tablestaff/internal/poller"
	"github.com/example/tablestaff/internal/web"
)

func newServerCmd(flags *rootFlags) *cobra.Command {
	var (
		addr          string
		allowNotifies bool
	)

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the staff console with background polling",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := newApp(ctx, flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.openActivity(ctx); err != nil {
				// the console works without history
				a.log.Error("activity log unavailable", sl.Err(err))
			}

			feed := notify.NewFeed(50)
			local := notify.NewLocal(a.log, feed, notify.LogSink{Log: a.log})
			// background until a console page shows up
			local.SetForeground(false)
			if allowNotifies {
				local.SetPermission(true)
			}

			ctl := &poller.Controller{
				Source:   a.repo,
				Session:  a.session,
				Interval: a.cfg.PollInterval,
				Notifier: local,
				Log:      a.log,
			}
			defer ctl.Deactivate()
			if a.session.Authenticated() {
				ctl.Activate(ctx)
			}

			flow := &confirm.Flow{Transitioner: a.repo, Refresher: ctl, Session: a.session, Log: a.log}
			ws := &web.Server{
				Auth:     auth.NewStore(a.session, a.cfg.CookieHashKey, a.cfg.CookieBlockKey),
				Repo:     a.repo,
				Poller:   ctl,
				Flow:     flow,
				Notifier: local,
				Feed:     feed,
				Log:      a.log,
				HelpURL:  a.cfg.HelpURL,
				AboutURL: a.cfg.AboutURL,

				PollInterval: a.cfg.PollInterval,
				BaseCtx:      ctx,
			}
			if a.activity != nil {
				flow.Recorder = a.activity
				ws.Activity = a.activity
			}

			go ws.TrackPresence(ctx)

			if addr == "" {
				addr = a.cfg.ListenAddr
			}
			return web.Start(ctx, addr, ws.Routes(), a.log)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default LISTEN_ADDR)")
	cmd.Flags().BoolVar(&allowNotifies, "notify", false, "allow notifications without asking in settings")
	return cmd
}
