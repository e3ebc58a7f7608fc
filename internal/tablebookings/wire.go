package tablebookings

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/example/tablestaff/internal/reservation"
)

// flexInt accepts 4, "4" and null.
type flexInt int

func (n *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*n = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*n = 0
			return nil
		}
		v, err := strconv.Atoi(s)
		if err != nil {
			return err
		}
		*n = flexInt(v)
		return nil
	}
	var v int
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*n = flexInt(v)
	return nil
}

// flexBool accepts true, 1, "1", "yes" and friends.
type flexBool bool

func (f *flexBool) UnmarshalJSON(b []byte) error {
	s := strings.ToLower(strings.Trim(strings.TrimSpace(string(b)), `"`))
	switch s {
	case "true", "1", "yes", "y":
		*f = true
	default:
		*f = false
	}
	return nil
}

type envelope struct {
	Status  any             `json:"status"`
	Message string          `json:"message"`
	Token   string          `json:"token"`
	Data    json.RawMessage `json:"data"`
}

type wireReservation struct {
	UUID            string  `json:"uuid"`
	ID              flexInt `json:"id"`
	ReservationDate string  `json:"reservation_date"`
	ReservationTime string  `json:"reservation_time"`
	NumberOfPeople  flexInt `json:"number_of_people"`
	Status          string  `json:"status"`
	Noted           string  `json:"noted"`

	Guest struct {
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Email     string `json:"email"`
		Phone     string `json:"phone"`
	} `json:"guest_information"`

	Table struct {
		TableName string   `json:"table_name"`
		Capacity  flexInt  `json:"capacity"`
		MinSeats  flexInt  `json:"min_seats"`
		MaxSeats  flexInt  `json:"max_seats"`
		IsOnline  flexBool `json:"is_online"`
	} `json:"table_master"`
}

func (w wireReservation) toDomain() (reservation.Reservation, error) {
	id := w.UUID
	if id == "" && w.ID != 0 {
		id = strconv.Itoa(int(w.ID))
	}
	if id == "" {
		return reservation.Reservation{}, errors.New("missing uuid")
	}
	st, err := reservation.ParseStatus(w.Status)
	if err != nil {
		return reservation.Reservation{}, err
	}
	return reservation.Reservation{
		ID:        id,
		Date:      strings.TrimSpace(w.ReservationDate),
		Time:      strings.TrimSpace(w.ReservationTime),
		PartySize: int(w.NumberOfPeople),
		Status:    st,
		Notes:     w.Noted,
		Guest: reservation.Guest{
			FirstName: w.Guest.FirstName,
			LastName:  w.Guest.LastName,
			Email:     w.Guest.Email,
			Phone:     w.Guest.Phone,
		},
		Table: reservation.Table{
			Name:     w.Table.TableName,
			Capacity: int(w.Table.Capacity),
			MinSeats: int(w.Table.MinSeats),
			MaxSeats: int(w.Table.MaxSeats),
			Online:   bool(w.Table.IsOnline),
		},
	}, nil
}

// decodeReservations decodes each element on its own so that one bad record
// only costs that record.
func decodeReservations(data json.RawMessage) ([]reservation.Reservation, []*ParseError, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return []reservation.Reservation{}, nil, nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("reservation list: %w", err)
	}
	out := make([]reservation.Reservation, 0, len(raw))
	var bad []*ParseError
	for i, r := range raw {
		var w wireReservation
		if err := json.Unmarshal(r, &w); err != nil {
			bad = append(bad, &ParseError{Record: fmt.Sprintf("reservation[%d]", i), Err: err})
			continue
		}
		res, err := w.toDomain()
		if err != nil {
			name := fmt.Sprintf("reservation[%d]", i)
			if w.UUID != "" {
				name = "reservation " + w.UUID
			}
			bad = append(bad, &ParseError{Record: name, Err: err})
			continue
		}
		out = append(out, res)
	}
	return out, bad, nil
}

type wireUser struct {
	UUID    string `json:"uuid"`
	ResUUID string `json:"res_uuid"`
	Name    string `json:"name"`
	Email   string `json:"email"`
}

type wireSlot struct {
	ID        flexInt `json:"id"`
	SlotStart string  `json:"slot_start"`
	SlotEnd   string  `json:"slot_end"`
}

type wireProfile struct {
	UUID     string                `json:"uuid"`
	Name     string                `json:"name"`
	Address  string                `json:"address"`
	PostCode string                `json:"post_code"`
	Phone    string                `json:"phone"`
	Email    string                `json:"email"`
	Website  string                `json:"website"`
	Avatar   string                `json:"avatar"`
	Slots    map[string][]wireSlot `json:"aval_slots"`
}
