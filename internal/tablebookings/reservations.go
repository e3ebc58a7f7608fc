package tablebookings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/example/tablestaff/internal/lib/logger/sl"
	"github.com/example/tablestaff/internal/reservation"
)

const reservationPath = "/secure/restaurant/reservation-for-restaurant"

// TimeLayout is the hour:minute format sent with check-in and check-out.
const TimeLayout = "15:04"

// Actor identifies who performs a transition: the staff user id for
// accept/reject/cancel, the confirmation time for checkin/checkout.
type Actor struct {
	UserID string
	At     time.Time
}

// ListReservations returns every reservation of the restaurant regardless
// of status or date.
func (c *Client) ListReservations(ctx context.Context, restaurantID string) ([]reservation.Reservation, error) {
	const op = "list reservations"
	if restaurantID == "" {
		return nil, fmt.Errorf("%s: restaurant id required", op)
	}
	q := url.Values{}
	q.Set("rest_uuid", restaurantID)
	q.Set("params", "info")

	env, err := c.call(ctx, op, http.MethodGet, reservationPath, q, nil, true)
	if err != nil {
		return nil, err
	}
	rs, bad, err := decodeReservations(listData(env.Data))
	if err != nil {
		return nil, &RemoteError{Op: op, Category: CategoryDecode, Err: err}
	}
	for _, pe := range bad {
		c.log.Warn("skipping malformed reservation", slog.String("record", pe.Record), sl.Err(pe.Err))
	}
	return rs, nil
}

// listData unwraps {"data": [...]} when the envelope fallback handed us the
// whole body.
func listData(data json.RawMessage) json.RawMessage {
	d := bytes.TrimSpace(data)
	if len(d) == 0 || d[0] != '{' {
		return d
	}
	var inner struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(d, &inner); err != nil {
		return d
	}
	return inner.Data
}

// Transition asks the server to apply action to a reservation and returns
// the reservation as the server reports it afterwards.
func (c *Client) Transition(ctx context.Context, restaurantID, reservationID string, action reservation.Action, actor Actor) (reservation.Reservation, error) {
	op := string(action) + " reservation"
	if restaurantID == "" || reservationID == "" {
		return reservation.Reservation{}, fmt.Errorf("%s: restaurant and reservation id required", op)
	}
	q := url.Values{}
	q.Set("rest_uuid", restaurantID)
	q.Set("params", string(action))
	q.Set("uuid", reservationID)

	switch action {
	case reservation.ActionAccept, reservation.ActionReject, reservation.ActionCancel:
		if actor.UserID == "" {
			return reservation.Reservation{}, fmt.Errorf("%s: acting user id required", op)
		}
		q.Set("user_uuid", actor.UserID)
	case reservation.ActionCheckIn:
		q.Set("checkin_time", actor.At.Format(TimeLayout))
	case reservation.ActionCheckOut:
		q.Set("checkout_time", actor.At.Format(TimeLayout))
	default:
		return reservation.Reservation{}, fmt.Errorf("%s: unknown action", op)
	}
	if actor.At.IsZero() && action.NeedsTimestamp() {
		return reservation.Reservation{}, fmt.Errorf("%s: timestamp required", op)
	}

	env, err := c.call(ctx, op, http.MethodGet, reservationPath, q, nil, true)
	if err != nil {
		return reservation.Reservation{}, err
	}

	var w wireReservation
	if err := json.Unmarshal(env.Data, &w); err == nil {
		if r, err := w.toDomain(); err == nil && r.ID == reservationID {
			return r, nil
		}
	}
	// Some replies only carry a message; the action alone determines the
	// new status.
	return reservation.Reservation{ID: reservationID, Status: action.Target()}, nil
}

var errNoRestaurant = errors.New("session has no restaurant")
