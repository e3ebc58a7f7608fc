package reservation

import (
	"errors"
	"fmt"
	"strings"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCheckIn   Status = "check_in"
	StatusCheckOut  Status = "check_out"
	StatusCompleted Status = "completed"
	StatusRejected  Status = "rejected"
)

type Action string

const (
	ActionAccept   Action = "accept"
	ActionReject   Action = "reject"
	ActionCancel   Action = "cancel"
	ActionCheckIn  Action = "checkin"
	ActionCheckOut Action = "checkout"
)

var ErrIllegalTransition = errors.New("illegal transition")

type transition struct {
	from   Status
	action Action
	to     Status
}

// transitions is the only place the workflow is defined. Order matters:
// ActionsFor returns actions in table order.
var transitions = []transition{
	{StatusPending, ActionReject, StatusRejected},
	{StatusPending, ActionAccept, StatusConfirmed},
	{StatusConfirmed, ActionCancel, StatusCancelled},
	{StatusConfirmed, ActionCheckIn, StatusCheckIn},
	{StatusCheckIn, ActionCheckOut, StatusCheckOut},
}

var statusLabels = map[Status]string{
	StatusPending:   "Pending",
	StatusConfirmed: "Confirmed",
	StatusCancelled: "Cancelled",
	StatusCheckIn:   "Checked In",
	StatusCheckOut:  "Check Out",
	StatusCompleted: "Completed",
	StatusRejected:  "Rejected",
}

// ParseStatus normalizes the wire value. The API has been seen to send
// "reject" for rejected reservations.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if st == "reject" {
		st = StatusRejected
	}
	if _, ok := statusLabels[st]; !ok {
		return "", fmt.Errorf("unknown status %q", s)
	}
	return st, nil
}

func (s Status) Label() string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return string(s)
}

// Terminal reports whether no staff action is offered for s.
func (s Status) Terminal() bool { return len(ActionsFor(s)) == 0 }

// ActionsFor returns the actions staff may take on a reservation in status s.
func ActionsFor(s Status) []Action {
	var out []Action
	for _, t := range transitions {
		if t.from == s {
			out = append(out, t.action)
		}
	}
	return out
}

func Allowed(s Status, a Action) bool {
	_, err := Next(s, a)
	return err == nil
}

// Next returns the status reached by applying a to s.
func Next(s Status, a Action) (Status, error) {
	for _, t := range transitions {
		if t.from == s && t.action == a {
			return t.to, nil
		}
	}
	return "", fmt.Errorf("%w: %s from %s", ErrIllegalTransition, a, s)
}

// Target is the status a successful a leads to.
func (a Action) Target() Status {
	for _, t := range transitions {
		if t.action == a {
			return t.to
		}
	}
	return ""
}

func ParseAction(s string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := actionText[a]; !ok {
		return "", fmt.Errorf("unknown action %q", s)
	}
	return a, nil
}

// NeedsTimestamp reports whether the transition request carries the local
// hour:minute at which staff confirmed it, instead of the acting user id.
func (a Action) NeedsTimestamp() bool {
	return a == ActionCheckIn || a == ActionCheckOut
}

type actionCopy struct {
	label   string
	title   string
	message string
}

var actionText = map[Action]actionCopy{
	ActionAccept:   {"Accept", "Confirm Acceptance", "Are you sure you want to accept this reservation?"},
	ActionReject:   {"Reject", "Confirm Rejection", "Are you sure you want to reject this reservation?"},
	ActionCancel:   {"Cancel", "Confirm Cancellation", "Are you sure you want to cancel this reservation?"},
	ActionCheckIn:  {"Check In", "Confirm Check In", "Are you sure you want to check in this guest?"},
	ActionCheckOut: {"Check Out", "Confirm Check Out", "Are you sure you want to check out this guest?"},
}

func (a Action) Label() string { return actionText[a].label }

// Confirmation returns the title and message shown before a is executed.
func (a Action) Confirmation() (title, message string) {
	c := actionText[a]
	return c.title, c.message
}
