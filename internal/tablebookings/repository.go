package tablebookings

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/example/tablestaff/internal/lib/logger/sl"
	"github.com/example/tablestaff/internal/reservation"
	"github.com/example/tablestaff/internal/session"
)

// Repository scopes the client to the logged-in restaurant. Without an
// authenticated session no request leaves the process.
type Repository struct {
	client  *Client
	session *session.Session
	log     *slog.Logger
}

func NewRepository(c *Client, s *session.Session, log *slog.Logger) *Repository {
	if log == nil {
		log = slog.Default()
	}
	return &Repository{client: c, session: s, log: log}
}

func (r *Repository) Session() *session.Session { return r.session }

func (r *Repository) scope(op string) (session.State, error) {
	st := r.session.Snapshot()
	if !st.Authenticated || st.Token == "" {
		return st, &AuthError{Op: op, Reason: "not logged in", Err: session.ErrNoSession}
	}
	if st.RestaurantID() == "" {
		return st, &AuthError{Op: op, Reason: "not logged in", Err: errNoRestaurant}
	}
	return st, nil
}

// Login authenticates against the API and activates the session.
func (r *Repository) Login(ctx context.Context, email, password string) (session.State, error) {
	res, err := r.client.Login(ctx, email, password)
	if err != nil {
		return session.State{}, err
	}
	st := res.State()
	if err := r.session.Login(ctx, st); err != nil {
		return session.State{}, err
	}
	r.log.Info("logged in", slog.String("user_id", st.UserID()), slog.String("restaurant_id", st.RestaurantID()))
	return st, nil
}

func (r *Repository) Logout(ctx context.Context) error {
	r.log.Info("logging out")
	return r.session.Logout(ctx)
}

func (r *Repository) ListReservations(ctx context.Context) ([]reservation.Reservation, error) {
	st, err := r.scope("list reservations")
	if err != nil {
		return nil, err
	}
	rs, err := r.client.ListReservations(ctx, st.RestaurantID())
	return rs, r.checkAuth(ctx, err)
}

// Transition applies action on behalf of the session user. at is the local
// time staff confirmed the action.
func (r *Repository) Transition(ctx context.Context, reservationID string, action reservation.Action, at time.Time) (reservation.Reservation, error) {
	st, err := r.scope(string(action) + " reservation")
	if err != nil {
		return reservation.Reservation{}, err
	}
	res, err := r.client.Transition(ctx, st.RestaurantID(), reservationID, action, Actor{UserID: st.UserID(), At: at})
	return res, r.checkAuth(ctx, err)
}

func (r *Repository) RestaurantProfile(ctx context.Context) (RestaurantProfile, error) {
	st, err := r.scope("restaurant profile")
	if err != nil {
		return RestaurantProfile{}, err
	}
	p, err := r.client.RestaurantProfile(ctx, st.RestaurantID())
	return p, r.checkAuth(ctx, err)
}

// checkAuth ends the session when the server rejected the token.
func (r *Repository) checkAuth(ctx context.Context, err error) error {
	if err == nil || !IsUnauthorized(err) {
		return err
	}
	if !r.session.Authenticated() {
		return err
	}
	r.log.Warn("server rejected session, logging out", sl.Err(err))
	if lerr := r.session.Logout(ctx); lerr != nil {
		return errors.Join(err, lerr)
	}
	return err
}
