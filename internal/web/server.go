// Package web serves the staff console: the Today's / Upcoming tabs,
// reservation detail with action confirmation, restaurant profile and
// notification settings.
package web

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"

	"github.com/example/tablestaff/internal/activity"
	"github.com/example/tablestaff/internal/auth"
	"github.com/example/tablestaff/internal/confirm"
	"github.com/example/tablestaff/internal/lib/logger/sl"
	"github.com/example/tablestaff/internal/notify"
	"github.com/example/tablestaff/internal/poller"
	"github.com/example/tablestaff/internal/reservation"
	"github.com/example/tablestaff/internal/tablebookings"
)

//go:embed templates/*.html
var fs embed.FS

// ActivityLog is the optional transition history.
type ActivityLog interface {
	Recent(ctx context.Context, restaurantID string, limit int) ([]activity.Entry, error)
}

type Server struct {
	Auth     *auth.Store
	Repo     *tablebookings.Repository
	Poller   *poller.Controller
	Flow     *confirm.Flow
	Notifier *notify.Local
	Feed     *notify.Feed
	Activity ActivityLog // nil when no database is configured
	Log      *slog.Logger
	Clock    func() time.Time

	HelpURL  string
	AboutURL string

	// PollInterval paces an open page's own polling and decides when the
	// console counts as backgrounded.
	PollInterval time.Duration

	// BaseCtx outlives requests; the poller runs under it.
	BaseCtx context.Context

	seenMu   sync.Mutex
	lastSeen time.Time
}

type tmplData struct {
	Title string
	User  string
	Flash string
	Error string

	Tab           reservation.Bucket
	TodayLabel    string
	UpcomingLabel string
	Reservations  []reservation.Reservation
	Reservation   reservation.Reservation
	Actions       []actionView
	Prompt        confirm.Prompt
	FetchedAt     time.Time
	ShownIDs      []string
	PollMillis    int64

	Profile     tablebookings.RestaurantProfile
	Prefs       notify.Preferences
	Permission  notify.Permission
	Alerts      []notify.Notification
	Unread      int
	Activity    []activity.Entry
	ActivityOff bool
}

type actionView struct {
	Action reservation.Action
	Label  string
	Busy   bool
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLog)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Get("/help", s.redirectTo(s.HelpURL))
	r.Get("/about", s.redirectTo(s.AboutURL))

	r.Get("/login", s.handleLoginPage)
	r.Post("/login", s.handleLogin)
	r.Post("/logout", s.handleLogout)

	r.Group(func(r chi.Router) {
		r.Use(s.Auth.RequireAuth)
		r.Use(s.present)
		r.Get("/", s.handleHome)
		r.Post("/refresh", s.handleRefresh)
		r.Get("/reservations/{id}", s.handleDetail)
		r.Get("/reservations/{id}/{action}", s.handlePrompt)
		r.Post("/reservations/{id}/{action}", s.handleConfirm)
		r.Get("/profile", s.handleProfile)
		r.Get("/settings", s.handleSettings)
		r.Post("/settings", s.handleSettingsSave)
		r.Get("/activity", s.handleActivity)
		r.Get("/api/reservations", s.handleSnapshotJSON)
	})
	return r
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger().Debug("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("took", time.Since(start)),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// present counts every request from a logged-in page, including the page's
// background polls, as someone looking at the console.
func (s *Server) present(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.seenMu.Lock()
		s.lastSeen = s.now()
		s.seenMu.Unlock()
		if !s.Notifier.Foreground() {
			s.logger().Debug("console in foreground")
			s.Notifier.SetForeground(true)
		}
		next.ServeHTTP(w, r)
	})
}

// CheckPresence moves notifications to the background once no page has
// been heard from for two poll intervals. It reports the new state.
func (s *Server) CheckPresence() bool {
	s.seenMu.Lock()
	last := s.lastSeen
	s.seenMu.Unlock()

	fg := !last.IsZero() && s.now().Sub(last) <= 2*s.pollInterval()
	if fg != s.Notifier.Foreground() {
		s.logger().Debug("console presence changed", slog.Bool("foreground", fg))
		s.Notifier.SetForeground(fg)
	}
	return fg
}

// TrackPresence runs CheckPresence every poll interval until ctx ends.
func (s *Server) TrackPresence(ctx context.Context) {
	t := time.NewTicker(s.pollInterval())
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.CheckPresence()
		}
	}
}

func (s *Server) pollInterval() time.Duration {
	if s.PollInterval > 0 {
		return s.PollInterval
	}
	return poller.DefaultInterval
}

func (s *Server) redirectTo(url string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if url == "" {
			http.NotFound(w, r)
			return
		}
		http.Redirect(w, r, url, http.StatusFound)
	}
}

// failed handles err from a remote call. It reports true when the session
// ended and the response has already been written.
func (s *Server) failed(w http.ResponseWriter, r *http.Request, err error) bool {
	if !tablebookings.IsUnauthorized(err) {
		return false
	}
	s.logger().Warn("session rejected", sl.Err(err), slog.String("request_id", middleware.GetReqID(r.Context())))
	if s.Repo.Session().Authenticated() {
		_ = s.Repo.Logout(r.Context())
	}
	s.Auth.ClearSession(w)
	http.Redirect(w, r, "/login", http.StatusFound)
	return true
}

// remoteMessage is the inline text shown for a failed call.
func remoteMessage(err error) string {
	var re *tablebookings.RemoteError
	switch {
	case errors.As(err, &re) && re.Category == tablebookings.CategoryTransport:
		return "Could not reach the server. Showing the last loaded data."
	case errors.As(err, &re) && re.Message != "":
		return re.Message
	case errors.Is(err, reservation.ErrIllegalTransition):
		return "That action is not available for this reservation."
	case errors.Is(err, confirm.ErrInFlight):
		return "This action is already being processed."
	}
	return "Something went wrong. Please try again."
}

var funcs = template.FuncMap{
	"statusLabel": func(st reservation.Status) string { return st.Label() },
	"clock": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format("15:04:05")
	},
	"percent": func(v float64) int { return int(v*100 + 0.5) },
}

func (s *Server) render(w http.ResponseWriter, status int, name string, data tmplData) {
	t, err := template.New("").Funcs(funcs).ParseFS(fs,
		"templates/base.html",
		name,
	)
	if err != nil {
		http.Error(w, "template error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := t.ExecuteTemplate(w, "base", data); err != nil {
		s.logger().Error("render failed", slog.String("template", name), sl.Err(err))
	}
}

func (s *Server) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}

func (s *Server) logger() *slog.Logger {
	if s.Log != nil {
		return s.Log
	}
	return slog.Default()
}

func (s *Server) baseCtx() context.Context {
	if s.BaseCtx != nil {
		return s.BaseCtx
	}
	return context.Background()
}

func Start(ctx context.Context, addr string, h http.Handler, log *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Info("console listening", slog.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
