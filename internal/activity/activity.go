// Package activity records the status changes staff made from this client.
package activity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/example/tablestaff/internal/db"
)

type Entry struct {
	ID            int64
	RestaurantID  string
	ReservationID string
	Action        string
	FromStatus    string
	ActorID       string
	ActedAt       time.Time
	Success       bool
	LastError     *string
	CreatedAt     time.Time
}

func (e Entry) Validate() error {
	if e.RestaurantID == "" {
		return fmt.Errorf("restaurant_id required")
	}
	if e.ReservationID == "" {
		return fmt.Errorf("reservation_id required")
	}
	if e.Action == "" {
		return fmt.Errorf("action required")
	}
	if e.ActedAt.IsZero() {
		return fmt.Errorf("acted_at required")
	}
	return nil
}

// Outcome is a one-word summary for listings.
func (e Entry) Outcome() string {
	if e.Success {
		return "ok"
	}
	if e.LastError != nil {
		return "failed: " + strings.TrimSpace(*e.LastError)
	}
	return "failed"
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) error
	Query(ctx context.Context, sql string, args ...any) (db.Rows, error)
}

type Repo struct{ db querier }

func NewRepo(d *db.DB) *Repo { return &Repo{db: d} }

func (r *Repo) Record(ctx context.Context, e Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	return db.Wrap(r.db.Exec(ctx, `
INSERT INTO transitions(restaurant_id,reservation_id,action,from_status,actor_id,acted_at,success,last_error)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		e.RestaurantID, e.ReservationID, e.Action, e.FromStatus, e.ActorID, e.ActedAt, e.Success, e.LastError,
	))
}

// Recent returns the newest entries for a restaurant.
func (r *Repo) Recent(ctx context.Context, restaurantID string, limit int) ([]Entry, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `
SELECT id,restaurant_id,reservation_id,action,from_status,actor_id,acted_at,success,last_error,created_at
FROM transitions
WHERE restaurant_id=$1
ORDER BY created_at DESC, id DESC
LIMIT $2`, restaurantID, limit)
	if err != nil {
		return nil, db.Wrap(err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.RestaurantID, &e.ReservationID, &e.Action, &e.FromStatus, &e.ActorID,
			&e.ActedAt, &e.Success, &e.LastError, &e.CreatedAt); err != nil {
			return nil, db.Wrap(err)
		}
		out = append(out, e)
	}
	return out, db.Wrap(rows.Err())
}
