package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/example/tablestaff/internal/activity"
	"github.com/example/tablestaff/internal/config"
	"github.com/example/tablestaff/internal/db"
	"github.com/example/tablestaff/internal/lib/logger/sl"
	"github.com/example/tablestaff/internal/migrate"
	"github.com/example/tablestaff/internal/session"
	"github.com/example/tablestaff/internal/tablebookings"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

// app is the wiring shared by every command that talks to the API.
type app struct {
	cfg      config.Config
	log      *slog.Logger
	session  *session.Session
	repo     *tablebookings.Repository
	activity *activity.Repo // nil without DATABASE_URL
	db       *db.DB
}

func newApp(ctx context.Context, flags *rootFlags, logOut io.Writer) (*app, error) {
	cfg, err := config.Load(flags.envFile)
	if err != nil {
		return nil, err
	}
	log := setupLogger(cfg.Env, flags.debug, logOut)

	sess := session.New(session.NewFileStore(cfg.TokenFile, cfg.CookieHashKey, cfg.CookieBlockKey, cfg.TokenMaxAge))
	if err := sess.Restore(ctx); err != nil {
		log.Warn("could not restore session", sl.Err(err))
	}

	client := tablebookings.New(tablebookings.Config{
		BaseURL:   cfg.APIBaseURL,
		AssetBase: cfg.AssetBaseURL,
		Timeout:   cfg.APITimeout,
		UserAgent: "tablestaff/" + Version,
	}, sess, log)

	return &app{
		cfg:     cfg,
		log:     log,
		session: sess,
		repo:    tablebookings.NewRepository(client, sess, log),
	}, nil
}

// openActivity connects the activity log when DATABASE_URL is set.
func (a *app) openActivity(ctx context.Context) error {
	if a.cfg.DatabaseURL == "" {
		return nil
	}
	d, err := db.Open(ctx, a.cfg.DatabaseURL)
	if err != nil {
		return err
	}
	if err := d.Ping(ctx); err != nil {
		d.Close()
		return fmt.Errorf("db ping: %w", err)
	}
	if err := migrate.Up(ctx, d, a.log); err != nil {
		d.Close()
		return err
	}
	a.db = d
	a.activity = activity.NewRepo(d)
	return nil
}

func (a *app) Close() {
	if a.db != nil {
		a.db.Close()
	}
}

// requireLogin fails early with a hint instead of an API round trip.
func (a *app) requireLogin() error {
	if !a.session.Authenticated() {
		return fmt.Errorf("not logged in (run `tablestaff login`)")
	}
	return nil
}

func setupLogger(env string, debug bool, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	var log *slog.Logger

	switch env {
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		level := slog.LevelInfo
		if debug {
			level = slog.LevelDebug
		}
		log = slog.New(
			slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}),
		)
	default:
		level := slog.LevelInfo
		if debug {
			level = slog.LevelDebug
		}
		log = slog.New(
			slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}),
		)
	}

	return log
}
