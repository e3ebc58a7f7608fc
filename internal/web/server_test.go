package web

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/tablestaff/internal/activity"
	"github.com/example/tablestaff/internal/auth"
	"github.com/example/tablestaff/internal/confirm"
	"github.com/example/tablestaff/internal/notify"
	"github.com/example/tablestaff/internal/poller"
	"github.com/example/tablestaff/internal/session"
	"github.com/example/tablestaff/internal/tablebookings"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeAPI struct {
	mu          sync.Mutex
	listStatus  int
	transitions []string
	lists       atomic.Int32
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	today := time.Now().Format("02/01/2006")
	later := time.Now().AddDate(0, 0, 3).Format("02/01/2006")
	switch {
	case r.URL.Path == "/user/login":
		writeJSON(w, http.StatusOK, map[string]any{
			"token": "tok-1",
			"data":  map[string]any{"uuid": "staff-1", "res_uuid": "rest-1", "name": "Sam"},
		})
	case strings.HasPrefix(r.URL.Path, "/secure/restaurant/reservation-for-restaurant"):
		f.mu.Lock()
		defer f.mu.Unlock()
		if p := r.URL.Query().Get("params"); p != "info" {
			f.transitions = append(f.transitions, p+":"+r.URL.Query().Get("uuid"))
			writeJSON(w, http.StatusOK, map[string]any{"status": true})
			return
		}
		f.lists.Add(1)
		if f.listStatus != 0 {
			writeJSON(w, f.listStatus, map[string]any{"message": "Unauthenticated."})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": []map[string]any{
			{"uuid": "r1", "reservation_date": today, "reservation_time": "19:00", "number_of_people": 2, "status": "pending",
				"guest_information": map[string]any{"first_name": "Ana", "last_name": "Lee"}},
			{"uuid": "r2", "reservation_date": later, "reservation_time": "20:00", "number_of_people": 4, "status": "confirmed"},
		}})
	case strings.HasPrefix(r.URL.Path, "/user/restaurant-single-info/"):
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"uuid": "rest-1", "name": "Chez Test"}})
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeAPI) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.transitions...)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type fakeActivity struct{ entries []activity.Entry }

func (f fakeActivity) Recent(ctx context.Context, restaurantID string, limit int) ([]activity.Entry, error) {
	return f.entries, nil
}

type harness struct {
	api  *fakeAPI
	srv  *Server
	h    http.Handler
	sess *session.Session
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	api := &fakeAPI{}
	ts := httptest.NewServer(api)
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	sess := session.New(session.NewMemoryStore())
	repo := tablebookings.NewRepository(tablebookings.New(tablebookings.Config{BaseURL: ts.URL}, sess, quiet), sess, quiet)
	feed := notify.NewFeed(10)
	local := notify.NewLocal(quiet, feed)
	ctl := &poller.Controller{Source: repo, Session: sess, Interval: time.Hour, Notifier: local, Log: quiet}
	t.Cleanup(ctl.Deactivate)

	srv := &Server{
		Auth:     auth.NewStore(sess, make([]byte, 32), make([]byte, 32)),
		Repo:     repo,
		Poller:   ctl,
		Flow:     &confirm.Flow{Transitioner: repo, Refresher: ctl, Session: sess, Log: quiet},
		Notifier: local,
		Feed:     feed,
		Log:      quiet,
		HelpURL:  "https://help.example",
		BaseCtx:  ctx,
	}
	return &harness{api: api, srv: srv, h: srv.Routes(), sess: sess}
}

func (h *harness) do(t *testing.T, method, path string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, path, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.h.ServeHTTP(rec, req)
	return rec
}

func (h *harness) login(t *testing.T) *http.Cookie {
	t.Helper()
	rec := h.do(t, http.MethodPost, "/login", url.Values{"email": {"sam@example.com"}, "password": {"pw"}})
	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "/", rec.Header().Get("Location"))
	cs := rec.Result().Cookies()
	require.Len(t, cs, 1)
	return cs[0]
}

func TestHealthAndLinks(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/healthz", nil).Code)

	rec := h.do(t, http.MethodGet, "/help", nil)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://help.example", rec.Header().Get("Location"))
	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodGet, "/about", nil).Code)
}

func TestHomeRequiresLogin(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
	assert.Equal(t, int32(0), h.api.lists.Load())
}

func TestLoginValidatesForm(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodPost, "/login", url.Values{"email": {"not-an-email"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Enter your email and password.")
	assert.False(t, h.sess.Authenticated())
}

func TestLoginShowsTabs(t *testing.T) {
	h := newHarness(t)
	c := h.login(t)
	assert.True(t, h.srv.Poller.Active())

	rec := h.do(t, http.MethodGet, "/", nil, c)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Today&#39;s(1)")
	assert.Contains(t, body, "Upcoming(1)")
	assert.Contains(t, body, "Ana Lee")
	assert.Contains(t, body, "/reservations/r1/accept")
	assert.Contains(t, body, "/reservations/r1/reject")

	rec = h.do(t, http.MethodGet, "/?tab=upcoming", nil, c)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/reservations/r2")
	assert.NotContains(t, rec.Body.String(), "/reservations/r2/cancel")
}

func TestConfirmationPageAndSubmit(t *testing.T) {
	h := newHarness(t)
	c := h.login(t)

	rec := h.do(t, http.MethodGet, "/reservations/r1/accept", nil, c)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Confirm Acceptance")
	assert.Empty(t, h.api.sent())

	rec = h.do(t, http.MethodPost, "/reservations/r1/accept", url.Values{}, c)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/?done=accept", rec.Header().Get("Location"))
	assert.Equal(t, []string{"accept:r1"}, h.api.sent())

	rec = h.do(t, http.MethodGet, "/?done=accept", nil, c)
	assert.Contains(t, rec.Body.String(), "Reservation confirmed.")
}

func TestDisallowedActionNeverReachesAPI(t *testing.T) {
	h := newHarness(t)
	c := h.login(t)

	rec := h.do(t, http.MethodPost, "/reservations/r1/checkout", url.Values{}, c)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "That action is not available for this reservation.")

	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodGet, "/reservations/r1/seat", nil, c).Code)
	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodGet, "/reservations/nope", nil, c).Code)
	assert.Empty(t, h.api.sent())
}

func TestRejectedTokenEndsSession(t *testing.T) {
	h := newHarness(t)
	h.api.listStatus = http.StatusUnauthorized
	c := h.login(t)

	rec := h.do(t, http.MethodGet, "/", nil, c)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
	assert.False(t, h.sess.Authenticated())
	assert.Eventually(t, func() bool { return !h.srv.Poller.Active() }, time.Second, 10*time.Millisecond)
}

func TestLogout(t *testing.T) {
	h := newHarness(t)
	c := h.login(t)

	rec := h.do(t, http.MethodPost, "/logout", url.Values{}, c)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.False(t, h.sess.Authenticated())
	assert.Eventually(t, func() bool { return !h.srv.Poller.Active() }, time.Second, 10*time.Millisecond)

	rec = h.do(t, http.MethodGet, "/", nil, c)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
}

func TestSnapshotJSON(t *testing.T) {
	h := newHarness(t)
	c := h.login(t)

	rec := h.do(t, http.MethodGet, "/api/reservations", nil, c)
	require.Equal(t, http.StatusOK, rec.Code)
	var v struct {
		Today  []struct{ ID string } `json:"today"`
		Counts struct {
			Today    int `json:"today"`
			Upcoming int `json:"upcoming"`
		} `json:"counts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	require.Len(t, v.Today, 1)
	assert.Equal(t, "r1", v.Today[0].ID)
	assert.Equal(t, 1, v.Counts.Upcoming)
}

func TestSettingsUpdateNotifier(t *testing.T) {
	h := newHarness(t)
	c := h.login(t)

	rec := h.do(t, http.MethodPost, "/settings", url.Values{"notifications": {"on"}, "sound": {"on"}, "volume": {"40"}}, c)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, notify.PermissionGranted, h.srv.Notifier.Permission())
	p := h.srv.Notifier.Preferences()
	assert.True(t, p.Sound)
	assert.False(t, p.Vibrate)
	assert.InDelta(t, 0.4, p.Volume, 0.001)
}

func TestProfileAndActivity(t *testing.T) {
	h := newHarness(t)
	c := h.login(t)

	rec := h.do(t, http.MethodGet, "/profile", nil, c)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Chez Test")

	rec = h.do(t, http.MethodGet, "/activity", nil, c)
	assert.Contains(t, rec.Body.String(), "activity log is off")

	h.srv.Activity = fakeActivity{entries: []activity.Entry{{ReservationID: "r9", Action: "accept", Success: true, ActedAt: time.Now()}}}
	rec = h.do(t, http.MethodGet, "/activity", nil, c)
	assert.Contains(t, rec.Body.String(), "r9")
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestReservationsPagePolls(t *testing.T) {
	h := newHarness(t)
	h.srv.PollInterval = 15 * time.Second
	c := h.login(t)

	rec := h.do(t, http.MethodGet, "/", nil, c)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `fetch("/api/reservations"`)
	assert.Contains(t, body, "15000")
	assert.Contains(t, body, `id="tab-today"`)
}

func TestNotificationsFollowConsolePresence(t *testing.T) {
	h := newHarness(t)
	clk := &testClock{t: time.Now()}
	h.srv.Clock = clk.now
	h.srv.PollInterval = 10 * time.Second
	h.srv.Notifier.SetPermission(true)
	h.srv.Notifier.SetForeground(false)
	c := h.login(t)

	ctx := context.Background()
	delivered := func() int { return len(h.srv.Feed.Recent()) }

	n := delivered()
	require.NoError(t, h.srv.Notifier.Notify(ctx, notify.NewReservations(1)))
	assert.Equal(t, n, delivered(), "nobody has opened the console yet")

	require.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/", nil, c).Code)
	assert.True(t, h.srv.Notifier.Foreground())
	n = delivered()
	require.NoError(t, h.srv.Notifier.Notify(ctx, notify.NewReservations(1)))
	assert.Equal(t, n+1, delivered())

	clk.advance(15 * time.Second)
	assert.True(t, h.srv.CheckPresence(), "one missed poll is tolerated")

	clk.advance(10 * time.Second)
	assert.False(t, h.srv.CheckPresence())
	n = delivered()
	require.NoError(t, h.srv.Notifier.Notify(ctx, notify.NewReservations(1)))
	assert.Equal(t, n, delivered())

	rec := h.do(t, http.MethodGet, "/api/reservations", nil, c)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, h.srv.CheckPresence())
	require.NoError(t, h.srv.Notifier.Notify(ctx, notify.NewReservations(1)))
	assert.Equal(t, n+1, delivered())
}

func TestSnapshotJSONLeavesUnreadForThePage(t *testing.T) {
	h := newHarness(t)
	h.srv.Notifier.SetPermission(true)
	h.srv.Notifier.SetForeground(true)
	c := h.login(t)
	require.NoError(t, h.srv.Notifier.Notify(context.Background(), notify.NewReservations(2)))

	var v struct {
		Unread int `json:"unread"`
	}
	for i := 0; i < 2; i++ {
		rec := h.do(t, http.MethodGet, "/api/reservations", nil, c)
		require.Equal(t, http.StatusOK, rec.Code)
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
		assert.Positive(t, v.Unread)
	}
}

func TestActionLogNamesStaffMember(t *testing.T) {
	h := newHarness(t)
	var buf lockedBuffer
	h.srv.Log = slog.New(slog.NewTextHandler(&buf, nil))
	h.h = h.srv.Routes()
	c := h.login(t)

	rec := h.do(t, http.MethodPost, "/reservations/r1/accept", url.Values{}, c)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Contains(t, buf.String(), `msg="reservation updated"`)
	assert.Contains(t, buf.String(), "user_id=staff-1")
}
