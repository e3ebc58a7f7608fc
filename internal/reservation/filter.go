package reservation

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/example/tablestaff/internal/lib/logger/sl"
)

// Bucket is a view over the reservation list. Past dates belong to none.
type Bucket string

const (
	BucketToday    Bucket = "today"
	BucketUpcoming Bucket = "upcoming"
)

func ParseBucket(s string) (Bucket, error) {
	switch b := Bucket(strings.ToLower(strings.TrimSpace(s))); b {
	case BucketToday, BucketUpcoming:
		return b, nil
	}
	return "", fmt.Errorf("unknown view %q (want today or upcoming)", s)
}

// ParseDate parses the API's DD/MM/YYYY reservation_date into a date-only
// value in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) != 3 {
		return time.Time{}, fmt.Errorf("invalid reservation date %q (want DD/MM/YYYY)", s)
	}
	var n [3]int
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid reservation date %q (want DD/MM/YYYY)", s)
		}
		n[i] = v
	}
	day, month, year := n[0], n[1], n[2]
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc)
	// time.Date normalizes 31/02 into March; reject instead.
	if d.Day() != day || int(d.Month()) != month || d.Year() != year {
		return time.Time{}, fmt.Errorf("invalid reservation date %q", s)
	}
	return d, nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Classify places a reservation date relative to now. ok is false for dates
// in the past.
func Classify(date, now time.Time) (Bucket, bool) {
	day := truncateDay(date)
	today := truncateDay(now)
	switch {
	case day.Equal(today):
		return BucketToday, true
	case day.After(today):
		return BucketUpcoming, true
	}
	return "", false
}

// Filter returns the reservations in rs that fall into b. Entries whose date
// cannot be parsed are logged and left out.
func Filter(rs []Reservation, b Bucket, now time.Time, log *slog.Logger) []Reservation {
	out := make([]Reservation, 0, len(rs))
	for _, r := range rs {
		got, ok := bucketOf(r, now, log)
		if ok && got == b {
			out = append(out, r)
		}
	}
	return out
}

// Current returns the reservations that are today or upcoming, in order.
func Current(rs []Reservation, now time.Time, log *slog.Logger) []Reservation {
	out := make([]Reservation, 0, len(rs))
	for _, r := range rs {
		if _, ok := bucketOf(r, now, log); ok {
			out = append(out, r)
		}
	}
	return out
}

type Counts struct {
	Today    int `json:"today"`
	Upcoming int `json:"upcoming"`
}

// Count tallies rs per bucket, skipping past and malformed entries.
func Count(rs []Reservation, now time.Time, log *slog.Logger) Counts {
	var c Counts
	for _, r := range rs {
		b, ok := bucketOf(r, now, log)
		if !ok {
			continue
		}
		switch b {
		case BucketToday:
			c.Today++
		case BucketUpcoming:
			c.Upcoming++
		}
	}
	return c
}

func (c Counts) Of(b Bucket) int {
	if b == BucketToday {
		return c.Today
	}
	return c.Upcoming
}

// TabLabels renders the tab titles, e.g. "Today's(1)" and "Upcoming(2)".
func (c Counts) TabLabels() (today, upcoming string) {
	return fmt.Sprintf("Today's(%d)", c.Today), fmt.Sprintf("Upcoming(%d)", c.Upcoming)
}

func bucketOf(r Reservation, now time.Time, log *slog.Logger) (Bucket, bool) {
	d, err := ParseDate(r.Date, now.Location())
	if err != nil {
		if log == nil {
			log = slog.Default()
		}
		log.Warn("skipping reservation with bad date",
			slog.String("reservation_id", r.ID),
			slog.String("reservation_date", r.Date),
			sl.Err(err),
		)
		return "", false
	}
	return Classify(d, now)
}
