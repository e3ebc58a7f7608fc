// Package confirm runs the two-step confirm-then-execute interaction for
// reservation status changes.
package confirm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/example/tablestaff/internal/activity"
	"github.com/example/tablestaff/internal/lib/logger/sl"
	"github.com/example/tablestaff/internal/poller"
	"github.com/example/tablestaff/internal/reservation"
	"github.com/example/tablestaff/internal/session"
)

var ErrInFlight = errors.New("action already in progress")

type Transitioner interface {
	Transition(ctx context.Context, reservationID string, action reservation.Action, at time.Time) (reservation.Reservation, error)
}

type Refresher interface {
	RefreshNow(ctx context.Context) (poller.Snapshot, error)
}

type Recorder interface {
	Record(ctx context.Context, e activity.Entry) error
}

// Prompt is what staff see before an action runs.
type Prompt struct {
	ReservationID string
	From          reservation.Status
	Action        reservation.Action
	Title         string
	Message       string
}

type key struct {
	id     string
	action reservation.Action
}

type Flow struct {
	Transitioner Transitioner
	Refresher    Refresher        // optional
	Recorder     Recorder         // optional
	Session      *session.Session // optional, scopes activity entries
	Clock        func() time.Time
	Log          *slog.Logger

	mu       sync.Mutex
	inFlight map[key]struct{}
}

// Prompt builds the confirmation for action on r. Actions the status does
// not allow are refused, as is an action already being submitted.
func (f *Flow) Prompt(r reservation.Reservation, action reservation.Action) (Prompt, error) {
	if !reservation.Allowed(r.Status, action) {
		return Prompt{}, fmt.Errorf("%w: cannot %s a %s reservation", reservation.ErrIllegalTransition, action, r.Status)
	}
	if f.Busy(r.ID, action) {
		return Prompt{}, ErrInFlight
	}
	title, msg := action.Confirmation()
	return Prompt{
		ReservationID: r.ID,
		From:          r.Status,
		Action:        action,
		Title:         title,
		Message:       msg,
	}, nil
}

// Busy reports whether action is being submitted for the reservation.
func (f *Flow) Busy(reservationID string, action reservation.Action) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.inFlight[key{reservationID, action}]
	return ok
}

// Confirm executes exactly one transition for p. On success the list is
// refreshed right away; on failure the error is returned and nothing else
// changes.
func (f *Flow) Confirm(ctx context.Context, p Prompt) (reservation.Reservation, error) {
	if p.ReservationID == "" || !reservation.Allowed(p.From, p.Action) {
		return reservation.Reservation{}, fmt.Errorf("%w: cannot %s a %s reservation", reservation.ErrIllegalTransition, p.Action, p.From)
	}
	k := key{p.ReservationID, p.Action}
	if !f.acquire(k) {
		return reservation.Reservation{}, ErrInFlight
	}
	defer f.release(k)

	log := f.logger().With(
		slog.String("reservation_id", p.ReservationID),
		slog.String("action", string(p.Action)),
	)

	at := f.now()
	res, err := f.Transitioner.Transition(ctx, p.ReservationID, p.Action, at)
	f.record(ctx, p, at, err)
	if err != nil {
		log.Error("transition failed", sl.Err(err))
		return reservation.Reservation{}, err
	}
	log.Info("transition done", slog.String("status", string(res.Status)))

	if f.Refresher != nil {
		if _, rerr := f.Refresher.RefreshNow(ctx); rerr != nil && !errors.Is(rerr, poller.ErrInactive) {
			log.Warn("refresh after transition failed", sl.Err(rerr))
		}
	}
	return res, nil
}

func (f *Flow) acquire(k key) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.inFlight == nil {
		f.inFlight = make(map[key]struct{})
	}
	if _, ok := f.inFlight[k]; ok {
		return false
	}
	f.inFlight[k] = struct{}{}
	return true
}

func (f *Flow) release(k key) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.inFlight, k)
}

func (f *Flow) record(ctx context.Context, p Prompt, at time.Time, err error) {
	if f.Recorder == nil {
		return
	}
	e := activity.Entry{
		ReservationID: p.ReservationID,
		Action:        string(p.Action),
		FromStatus:    string(p.From),
		ActedAt:       at,
		Success:       err == nil,
	}
	if f.Session != nil {
		st := f.Session.Snapshot()
		e.RestaurantID = st.RestaurantID()
		e.ActorID = st.UserID()
	}
	if err != nil {
		msg := err.Error()
		e.LastError = &msg
	}
	if rerr := f.Recorder.Record(ctx, e); rerr != nil {
		f.logger().Warn("record activity failed", sl.Err(rerr))
	}
}

func (f *Flow) now() time.Time {
	if f.Clock != nil {
		return f.Clock()
	}
	return time.Now()
}

func (f *Flow) logger() *slog.Logger {
	if f.Log != nil {
		return f.Log
	}
	return slog.Default()
}
