package tablebookings

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/tablestaff/internal/reservation"
	"github.com/example/tablestaff/internal/session"
)

func TestRepositoryRequiresSession(t *testing.T) {
	api, srv := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"data":[]}`)
	})
	sess := session.New(nil)
	repo := NewRepository(New(Config{BaseURL: srv.URL}, sess, quiet), sess, quiet)
	ctx := context.Background()

	_, err := repo.ListReservations(ctx)
	assert.True(t, IsUnauthorized(err))
	_, err = repo.Transition(ctx, "r1", reservation.ActionAccept, time.Now())
	assert.True(t, IsUnauthorized(err))
	_, err = repo.RestaurantProfile(ctx)
	assert.True(t, IsUnauthorized(err))
	assert.Equal(t, int32(0), api.hits.Load())
}

func TestRepositoryEndToEnd(t *testing.T) {
	today := time.Now()
	day := func(offset int) string { return today.AddDate(0, 0, offset).Format("02/01/2006") }

	var transitions []string
	_, srv := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/user/login":
			writeJSON(w, http.StatusOK, map[string]any{
				"token": "tok-9",
				"data":  map[string]any{"uuid": "staff-1", "res_uuid": "rest-1"},
			})
		case reservationPath:
			assert.Equal(t, "Bearer tok-9", r.Header.Get("Authorization"))
			if p := r.URL.Query().Get("params"); p != "info" {
				transitions = append(transitions, p+":"+r.URL.Query().Get("user_uuid"))
				writeJSON(w, http.StatusOK, map[string]any{"status": true})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"data": []map[string]any{
				{"uuid": "a", "reservation_date": day(0), "number_of_people": 2, "status": "pending"},
				{"uuid": "b", "reservation_date": day(1), "number_of_people": 2, "status": "pending"},
				{"uuid": "c", "reservation_date": day(9), "number_of_people": 2, "status": "confirmed"},
			}})
		default:
			http.NotFound(w, r)
		}
	})

	store := session.NewMemoryStore()
	sess := session.New(store)
	repo := NewRepository(New(Config{BaseURL: srv.URL}, sess, quiet), sess, quiet)
	ctx := context.Background()

	st, err := repo.Login(ctx, "staff@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, "rest-1", st.RestaurantID())
	persisted, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-9", persisted.Token)

	rs, err := repo.ListReservations(ctx)
	require.NoError(t, err)
	require.Len(t, rs, 3)

	counts := reservation.Count(rs, today, quiet)
	assert.Len(t, reservation.Filter(rs, reservation.BucketToday, today, quiet), 1)
	assert.Len(t, reservation.Filter(rs, reservation.BucketUpcoming, today, quiet), 2)
	todayLabel, upcomingLabel := counts.TabLabels()
	assert.Equal(t, "Today's(1)", todayLabel)
	assert.Equal(t, "Upcoming(2)", upcomingLabel)

	_, err = repo.Transition(ctx, "a", reservation.ActionAccept, today)
	require.NoError(t, err)
	assert.Equal(t, []string{"accept:staff-1"}, transitions)
}

func TestRepositoryLogsOutOnUnauthorized(t *testing.T) {
	_, srv := newFakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "token expired"})
	})
	sess := session.New(nil)
	require.NoError(t, sess.Login(context.Background(), session.State{
		User:  session.User{ID: "u", RestaurantID: "rest-1"},
		Token: "tok",
	}))
	loggedOut := false
	sess.Subscribe(func(st session.State) { loggedOut = !st.Authenticated })

	repo := NewRepository(New(Config{BaseURL: srv.URL}, sess, quiet), sess, quiet)
	_, err := repo.ListReservations(context.Background())
	assert.True(t, IsUnauthorized(err))
	assert.True(t, loggedOut)
	assert.False(t, sess.Authenticated())
}
