package reservation

// Reservation is a guest's booked table slot as returned by the
// reservation-for-restaurant endpoint.
type Reservation struct {
	ID        string `json:"id"`
	Date      string `json:"date"` // DD/MM/YYYY, no zone
	Time      string `json:"time"` // free text, e.g. "19:30"
	PartySize int    `json:"party_size"`
	Status    Status `json:"status"`

	Guest Guest  `json:"guest"`
	Table Table  `json:"table"`
	Notes string `json:"notes,omitempty"`
}

type Guest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

func (g Guest) Name() string {
	switch {
	case g.FirstName == "":
		return g.LastName
	case g.LastName == "":
		return g.FirstName
	}
	return g.FirstName + " " + g.LastName
}

type Table struct {
	Name     string `json:"name"`
	Capacity int    `json:"capacity"`
	MinSeats int    `json:"min_seats"`
	MaxSeats int    `json:"max_seats"`
	Online   bool   `json:"online"` // bookable online
}

// Actions returns the staff actions offered for r's current status.
func (r Reservation) Actions() []Action { return ActionsFor(r.Status) }

// IDs returns the identifiers of rs in order.
func IDs(rs []Reservation) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.ID)
	}
	return out
}
