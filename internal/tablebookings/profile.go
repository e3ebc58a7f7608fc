package tablebookings

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

type Slot struct {
	ID    int
	Start string
	End   string
}

// RestaurantProfile is the restaurant-single-info payload.
type RestaurantProfile struct {
	ID        string
	Name      string
	Address   string
	PostCode  string
	Phone     string
	Email     string
	Website   string
	AvatarURL string

	// keyed by lower-case weekday name
	Slots map[string][]Slot
}

var weekdayOrder = map[string]int{
	"monday": 0, "tuesday": 1, "wednesday": 2, "thursday": 3,
	"friday": 4, "saturday": 5, "sunday": 6,
}

// Weekdays returns the keys of Slots, Monday first; unknown keys sort last.
func (p RestaurantProfile) Weekdays() []string {
	days := make([]string, 0, len(p.Slots))
	for d := range p.Slots {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool {
		oi, iok := weekdayOrder[days[i]]
		oj, jok := weekdayOrder[days[j]]
		switch {
		case iok && jok:
			return oi < oj
		case iok != jok:
			return iok
		}
		return days[i] < days[j]
	})
	return days
}

// RestaurantProfile fetches GET /user/restaurant-single-info/{id}.
func (c *Client) RestaurantProfile(ctx context.Context, restaurantID string) (RestaurantProfile, error) {
	const op = "restaurant profile"
	if restaurantID == "" {
		return RestaurantProfile{}, fmt.Errorf("%s: restaurant id required", op)
	}
	env, err := c.call(ctx, op, http.MethodGet, "/user/restaurant-single-info/"+url.PathEscape(restaurantID), nil, nil, true)
	if err != nil {
		return RestaurantProfile{}, err
	}

	var w wireProfile
	if err := json.Unmarshal(env.Data, &w); err != nil {
		return RestaurantProfile{}, &RemoteError{Op: op, Category: CategoryDecode, Err: err}
	}
	p := RestaurantProfile{
		ID:       w.UUID,
		Name:     w.Name,
		Address:  w.Address,
		PostCode: w.PostCode,
		Phone:    w.Phone,
		Email:    w.Email,
		Website:  w.Website,
		Slots:    make(map[string][]Slot, len(w.Slots)),
	}
	if p.ID == "" {
		p.ID = restaurantID
	}
	if w.Avatar != "" {
		p.AvatarURL = c.assetURL(w.Avatar)
	}
	for day, ss := range w.Slots {
		day = strings.ToLower(strings.TrimSpace(day))
		slots := make([]Slot, 0, len(ss))
		for _, s := range ss {
			slots = append(slots, Slot{ID: int(s.ID), Start: s.SlotStart, End: s.SlotEnd})
		}
		p.Slots[day] = slots
	}
	return p, nil
}

func (c *Client) assetURL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return c.assetBase + "/" + strings.TrimLeft(path, "/")
}
