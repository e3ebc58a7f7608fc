package web

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/example/tablestaff/internal/auth"
	"github.com/example/tablestaff/internal/confirm"
	"github.com/example/tablestaff/internal/lib/logger/sl"
	"github.com/example/tablestaff/internal/notify"
	"github.com/example/tablestaff/internal/poller"
	"github.com/example/tablestaff/internal/reservation"
	"github.com/example/tablestaff/internal/session"
	"github.com/example/tablestaff/internal/tablebookings"
)

var validate = validator.New()

type loginForm struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if sess, ok := s.Auth.GetSession(r); ok && s.Repo.Session().Snapshot().UserID() == sess.UserID {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	s.render(w, http.StatusOK, "templates/login.html", tmplData{Title: "Login"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	const op = "web.handleLogin"
	log := s.logger().With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	form := loginForm{
		Email:    strings.TrimSpace(r.FormValue("email")),
		Password: r.FormValue("password"),
	}
	if err := validate.Struct(form); err != nil {
		s.render(w, http.StatusBadRequest, "templates/login.html", tmplData{Title: "Login", Error: "Enter your email and password."})
		return
	}

	st, err := s.Repo.Login(r.Context(), form.Email, form.Password)
	if err != nil {
		log.Warn("login failed", sl.Err(err))
		msg := remoteMessage(err)
		var ae *tablebookings.AuthError
		if errors.As(err, &ae) {
			msg = sentence(ae.Reason)
		}
		s.render(w, http.StatusUnauthorized, "templates/login.html", tmplData{Title: "Login", Error: msg})
		return
	}
	if err := s.Auth.SetSession(w, r, st.UserID()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.Poller.Activate(s.baseCtx())
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.Repo.Logout(r.Context()); err != nil {
		s.logger().Error("logout failed", sl.Err(err))
	}
	s.Auth.ClearSession(w)
	http.Redirect(w, r, "/login", http.StatusFound)
}

// current returns the latest snapshot, fetching once if nothing has been
// loaded in this activation.
func (s *Server) current(r *http.Request) (poller.Snapshot, error) {
	if !s.Poller.Active() {
		s.Poller.Activate(s.baseCtx())
	}
	snap := s.Poller.Snapshot()
	if !snap.FetchedAt.IsZero() {
		return snap, snap.Err
	}
	snap, err := s.Poller.RefreshNow(r.Context())
	if errors.Is(err, poller.ErrInactive) {
		err = s.sessionEnded()
	}
	return snap, err
}

// sessionEnded is the error for a poll cut short by logout, nil otherwise.
func (s *Server) sessionEnded() error {
	if s.Repo.Session().Authenticated() {
		return nil
	}
	return &tablebookings.AuthError{Op: "list reservations", Reason: "session ended", Err: session.ErrNoSession}
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	tab, err := reservation.ParseBucket(r.URL.Query().Get("tab"))
	if err != nil {
		tab = reservation.BucketToday
	}
	snap, err := s.current(r)
	if err != nil && s.failed(w, r, err) {
		return
	}

	data := s.page(r, "Reservations")
	data.Tab = tab
	data.TodayLabel, data.UpcomingLabel = snap.Counts.TabLabels()
	data.Reservations = reservation.Filter(snap.All, tab, s.now(), s.logger())
	data.ShownIDs = reservation.IDs(data.Reservations)
	data.PollMillis = s.pollInterval().Milliseconds()
	data.FetchedAt = snap.FetchedAt
	if err != nil {
		data.Error = remoteMessage(err)
	}
	if done, aerr := reservation.ParseAction(r.URL.Query().Get("done")); aerr == nil {
		data.Flash = "Reservation " + strings.ToLower(done.Target().Label()) + "."
	}
	s.render(w, http.StatusOK, "templates/reservations.html", data)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	_, err := s.Poller.RefreshNow(r.Context())
	if errors.Is(err, poller.ErrInactive) {
		if err = s.sessionEnded(); err == nil {
			s.Poller.Activate(s.baseCtx())
		}
	}
	if err != nil && s.failed(w, r, err) {
		return
	}
	tab := r.FormValue("tab")
	if _, perr := reservation.ParseBucket(tab); perr != nil {
		tab = string(reservation.BucketToday)
	}
	http.Redirect(w, r, "/?tab="+url.QueryEscape(tab), http.StatusSeeOther)
}

// find looks a reservation up in the latest snapshot, refreshing once when
// it is not there.
func (s *Server) find(r *http.Request, id string) (reservation.Reservation, bool, error) {
	snap, err := s.current(r)
	if err != nil && tablebookings.IsUnauthorized(err) {
		return reservation.Reservation{}, false, err
	}
	for _, res := range snap.All {
		if res.ID == id {
			return res, true, nil
		}
	}
	snap, err = s.Poller.RefreshNow(r.Context())
	if errors.Is(err, poller.ErrInactive) {
		err = s.sessionEnded()
	}
	if err != nil {
		return reservation.Reservation{}, false, err
	}
	for _, res := range snap.All {
		if res.ID == id {
			return res, true, nil
		}
	}
	return reservation.Reservation{}, false, nil
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (reservation.Reservation, bool) {
	res, ok, err := s.find(r, chi.URLParam(r, "id"))
	if err != nil {
		if s.failed(w, r, err) {
			return res, false
		}
		data := s.page(r, "Reservation")
		data.Error = remoteMessage(err)
		s.render(w, http.StatusBadGateway, "templates/error.html", data)
		return res, false
	}
	if !ok {
		data := s.page(r, "Not found")
		data.Error = "Reservation not found."
		s.render(w, http.StatusNotFound, "templates/error.html", data)
		return res, false
	}
	return res, true
}

func (s *Server) detail(r *http.Request, res reservation.Reservation) tmplData {
	data := s.page(r, "Reservation")
	data.Reservation = res
	for _, a := range res.Actions() {
		data.Actions = append(data.Actions, actionView{Action: a, Label: a.Label(), Busy: s.Flow.Busy(res.ID, a)})
	}
	return data
}

func (s *Server) handleDetail(w http.ResponseWriter, r *http.Request) {
	res, ok := s.lookup(w, r)
	if !ok {
		return
	}
	s.render(w, http.StatusOK, "templates/detail.html", s.detail(r, res))
}

// prompt resolves the reservation and action of the URL into a
// confirmation. Disallowed actions never reach the API.
func (s *Server) prompt(w http.ResponseWriter, r *http.Request) (confirm.Prompt, bool) {
	action, err := reservation.ParseAction(chi.URLParam(r, "action"))
	if err != nil {
		http.NotFound(w, r)
		return confirm.Prompt{}, false
	}
	res, ok := s.lookup(w, r)
	if !ok {
		return confirm.Prompt{}, false
	}
	p, err := s.Flow.Prompt(res, action)
	if err != nil {
		data := s.detail(r, res)
		data.Error = remoteMessage(err)
		s.render(w, http.StatusConflict, "templates/detail.html", data)
		return confirm.Prompt{}, false
	}
	return p, true
}

func (s *Server) handlePrompt(w http.ResponseWriter, r *http.Request) {
	p, ok := s.prompt(w, r)
	if !ok {
		return
	}
	data := s.page(r, p.Title)
	data.Prompt = p
	s.render(w, http.StatusOK, "templates/confirm.html", data)
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	p, ok := s.prompt(w, r)
	if !ok {
		return
	}
	res, err := s.Flow.Confirm(r.Context(), p)
	if err != nil {
		if s.failed(w, r, err) {
			return
		}
		status := http.StatusBadGateway
		if errors.Is(err, confirm.ErrInFlight) || errors.Is(err, reservation.ErrIllegalTransition) {
			status = http.StatusConflict
		}
		cur, _, _ := s.find(r, p.ReservationID)
		if cur.ID == "" {
			cur = reservation.Reservation{ID: p.ReservationID, Status: p.From}
		}
		data := s.detail(r, cur)
		data.Error = remoteMessage(err)
		s.render(w, status, "templates/detail.html", data)
		return
	}
	uid, _ := auth.UserIDFromContext(r.Context())
	s.logger().Info("reservation updated",
		slog.String("reservation_id", res.ID),
		slog.String("status", string(res.Status)),
		slog.String("user_id", uid),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)
	http.Redirect(w, r, "/?done="+url.QueryEscape(string(p.Action)), http.StatusSeeOther)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.Repo.RestaurantProfile(r.Context())
	data := s.page(r, "Restaurant")
	if err != nil {
		if s.failed(w, r, err) {
			return
		}
		data.Error = remoteMessage(err)
		s.render(w, http.StatusBadGateway, "templates/profile.html", data)
		return
	}
	data.Profile = p
	s.render(w, http.StatusOK, "templates/profile.html", data)
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, "templates/settings.html", s.page(r, "Settings"))
}

func (s *Server) handleSettingsSave(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.Notifier.SetPermission(r.FormValue("notifications") == "on")
	vol, err := strconv.Atoi(r.FormValue("volume"))
	if err != nil {
		vol = int(s.Notifier.Preferences().Volume * 100)
	}
	s.Notifier.SetPreferences(notify.Preferences{
		Sound:   r.FormValue("sound") == "on",
		Volume:  float64(vol) / 100,
		Vibrate: r.FormValue("vibrate") == "on",
	})
	uid, _ := auth.UserIDFromContext(r.Context())
	s.logger().Info("notification settings saved",
		slog.String("user_id", uid),
		slog.String("permission", s.Notifier.Permission().String()),
	)
	data := s.page(r, "Settings")
	data.Flash = "Settings saved."
	s.render(w, http.StatusOK, "templates/settings.html", data)
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	data := s.page(r, "Activity")
	if s.Activity == nil {
		data.ActivityOff = true
		s.render(w, http.StatusOK, "templates/activity.html", data)
		return
	}
	es, err := s.Activity.Recent(r.Context(), s.Repo.Session().Snapshot().RestaurantID(), 50)
	if err != nil {
		s.logger().Error("activity lookup failed", sl.Err(err))
		data.Error = "Could not load activity."
	}
	data.Activity = es
	s.render(w, http.StatusOK, "templates/activity.html", data)
}

type snapshotView struct {
	Today     []reservation.Reservation `json:"today"`
	Upcoming  []reservation.Reservation `json:"upcoming"`
	Counts    reservation.Counts        `json:"counts"`
	NewIDs    []string                  `json:"new_ids,omitempty"`
	FetchedAt string                    `json:"fetched_at,omitempty"`
	Unread    int                       `json:"unread"`
	Error     string                    `json:"error,omitempty"`
}

// handleSnapshotJSON lets an open console page poll for new arrivals.
func (s *Server) handleSnapshotJSON(w http.ResponseWriter, r *http.Request) {
	snap, err := s.current(r)
	if err != nil && tablebookings.IsUnauthorized(err) {
		_ = s.Repo.Logout(r.Context())
		s.Auth.ClearSession(w)
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, map[string]string{"error": "logged out"})
		return
	}
	now := s.now()
	v := snapshotView{
		Today:    reservation.Filter(snap.All, reservation.BucketToday, now, s.logger()),
		Upcoming: reservation.Filter(snap.All, reservation.BucketUpcoming, now, s.logger()),
		Counts:   snap.Counts,
		NewIDs:   snap.NewIDs,
		Unread:   s.Feed.Unread(),
	}
	if !snap.FetchedAt.IsZero() {
		v.FetchedAt = snap.FetchedAt.Format("2006-01-02T15:04:05Z07:00")
	}
	if err != nil {
		v.Error = remoteMessage(err)
	}
	render.JSON(w, r, v)
}

func (s *Server) page(_ *http.Request, title string) tmplData {
	st := s.Repo.Session().Snapshot()
	name := st.User.Name
	if name == "" {
		name = st.User.Email
	}
	return tmplData{
		Title:      title,
		User:       name,
		Prefs:      s.Notifier.Preferences(),
		Permission: s.Notifier.Permission(),
		Alerts:     s.Feed.Recent(),
		Unread:     s.Feed.TakeUnread(),
	}
}

func sentence(s string) string {
	if s == "" {
		return "Login failed."
	}
	return strings.ToUpper(s[:1]) + s[1:] + "."
}
