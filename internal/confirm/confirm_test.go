package confirm

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/tablestaff/internal/activity"
	"github.com/example/tablestaff/internal/poller"
	"github.com/example/tablestaff/internal/reservation"
	"github.com/example/tablestaff/internal/session"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeTransitioner struct {
	calls atomic.Int32
	gate  chan struct{}
	err   error
	gotAt time.Time
	mu    sync.Mutex
}

func (f *fakeTransitioner) Transition(ctx context.Context, id string, a reservation.Action, at time.Time) (reservation.Reservation, error) {
	f.calls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	f.gotAt = at
	f.mu.Unlock()
	if f.err != nil {
		return reservation.Reservation{}, f.err
	}
	return reservation.Reservation{ID: id, Status: a.Target()}, nil
}

type fakeRefresher struct{ calls atomic.Int32 }

func (f *fakeRefresher) RefreshNow(ctx context.Context) (poller.Snapshot, error) {
	f.calls.Add(1)
	return poller.Snapshot{}, nil
}

type fakeRecorder struct {
	mu      sync.Mutex
	entries []activity.Entry
}

func (f *fakeRecorder) Record(ctx context.Context, e activity.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
	return nil
}

var pending = reservation.Reservation{ID: "r1", Status: reservation.StatusPending}

func clock() time.Time { return time.Date(2024, 6, 15, 19, 5, 0, 0, time.UTC) }

func TestPromptOnlyForAllowedActions(t *testing.T) {
	f := &Flow{Transitioner: &fakeTransitioner{}, Log: quiet}

	p, err := f.Prompt(pending, reservation.ActionAccept)
	require.NoError(t, err)
	assert.Equal(t, "Confirm Acceptance", p.Title)
	assert.Equal(t, reservation.StatusPending, p.From)

	_, err = f.Prompt(pending, reservation.ActionCheckIn)
	assert.ErrorIs(t, err, reservation.ErrIllegalTransition)

	done := reservation.Reservation{ID: "r2", Status: reservation.StatusCheckOut}
	for _, a := range []reservation.Action{reservation.ActionAccept, reservation.ActionCancel, reservation.ActionCheckOut} {
		_, err = f.Prompt(done, a)
		assert.ErrorIs(t, err, reservation.ErrIllegalTransition)
	}
}

func TestConfirmRunsOneTransitionAndRefreshes(t *testing.T) {
	tr := &fakeTransitioner{}
	ref := &fakeRefresher{}
	rec := &fakeRecorder{}
	sess := session.New(nil)
	require.NoError(t, sess.Login(context.Background(), session.State{User: session.User{ID: "u1", RestaurantID: "rest-1"}, Token: "t"}))

	f := &Flow{Transitioner: tr, Refresher: ref, Recorder: rec, Session: sess, Clock: clock, Log: quiet}
	p, err := f.Prompt(pending, reservation.ActionAccept)
	require.NoError(t, err)

	got, err := f.Confirm(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, reservation.StatusConfirmed, got.Status)
	assert.Equal(t, int32(1), tr.calls.Load())
	assert.Equal(t, int32(1), ref.calls.Load())
	assert.Equal(t, clock(), tr.gotAt)

	require.Len(t, rec.entries, 1)
	assert.Equal(t, "rest-1", rec.entries[0].RestaurantID)
	assert.Equal(t, "u1", rec.entries[0].ActorID)
	assert.True(t, rec.entries[0].Success)
	assert.False(t, f.Busy("r1", reservation.ActionAccept))
}

func TestConfirmFailureDoesNotRefresh(t *testing.T) {
	boom := errors.New("status=500")
	tr := &fakeTransitioner{err: boom}
	ref := &fakeRefresher{}
	rec := &fakeRecorder{}
	f := &Flow{Transitioner: tr, Refresher: ref, Recorder: rec, Clock: clock, Log: quiet}

	p, err := f.Prompt(pending, reservation.ActionReject)
	require.NoError(t, err)
	_, err = f.Confirm(context.Background(), p)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(0), ref.calls.Load())
	require.Len(t, rec.entries, 1)
	assert.False(t, rec.entries[0].Success)
	require.NotNil(t, rec.entries[0].LastError)
	assert.False(t, f.Busy("r1", reservation.ActionReject))
}

func TestDuplicateSubmissionRejected(t *testing.T) {
	tr := &fakeTransitioner{gate: make(chan struct{})}
	f := &Flow{Transitioner: tr, Clock: clock, Log: quiet}
	p, err := f.Prompt(pending, reservation.ActionAccept)
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() {
		_, err := f.Confirm(context.Background(), p)
		errc <- err
	}()
	require.Eventually(t, func() bool { return f.Busy("r1", reservation.ActionAccept) }, time.Second, 5*time.Millisecond)

	_, err = f.Confirm(context.Background(), p)
	assert.ErrorIs(t, err, ErrInFlight)
	_, err = f.Prompt(pending, reservation.ActionAccept)
	assert.ErrorIs(t, err, ErrInFlight)

	// a different action on the same reservation is a different pair
	assert.False(t, f.Busy("r1", reservation.ActionReject))

	close(tr.gate)
	require.NoError(t, <-errc)
	assert.Equal(t, int32(1), tr.calls.Load())
	assert.False(t, f.Busy("r1", reservation.ActionAccept))
}

func TestConfirmRejectsForgedPrompt(t *testing.T) {
	tr := &fakeTransitioner{}
	f := &Flow{Transitioner: tr, Log: quiet}
	_, err := f.Confirm(context.Background(), Prompt{ReservationID: "r1", From: reservation.StatusCancelled, Action: reservation.ActionCheckIn})
	assert.ErrorIs(t, err, reservation.ErrIllegalTransition)
	assert.Equal(t, int32(0), tr.calls.Load())
}
