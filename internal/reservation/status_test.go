package reservation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActionsFor(t *testing.T) {
	cases := map[Status][]Action{
		StatusPending:   {ActionReject, ActionAccept},
		StatusConfirmed: {ActionCancel, ActionCheckIn},
		StatusCheckIn:   {ActionCheckOut},
		StatusCheckOut:  nil,
		StatusCancelled: nil,
		StatusRejected:  nil,
		StatusCompleted: nil,
	}
	for st, want := range cases {
		assert.Equal(t, want, ActionsFor(st), "status %s", st)
		assert.Equal(t, want == nil, st.Terminal(), "terminal %s", st)
	}
}

func TestNext(t *testing.T) {
	got, err := Next(StatusPending, ActionAccept)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, got)

	got, err = Next(StatusConfirmed, ActionCheckIn)
	require.NoError(t, err)
	assert.Equal(t, StatusCheckIn, got)

	got, err = Next(StatusCheckIn, ActionCheckOut)
	require.NoError(t, err)
	assert.Equal(t, StatusCheckOut, got)
}

func TestNextRejectsSkips(t *testing.T) {
	_, err := Next(StatusPending, ActionCheckIn)
	assert.True(t, errors.Is(err, ErrIllegalTransition))

	_, err = Next(StatusConfirmed, ActionCheckOut)
	assert.True(t, errors.Is(err, ErrIllegalTransition))

	for _, a := range []Action{ActionAccept, ActionReject, ActionCancel, ActionCheckIn, ActionCheckOut} {
		assert.False(t, Allowed(StatusRejected, a))
		assert.False(t, Allowed(StatusCompleted, a))
	}
}

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus(" Check_In ")
	require.NoError(t, err)
	assert.Equal(t, StatusCheckIn, st)

	st, err = ParseStatus("reject")
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, st)
	assert.Equal(t, "Rejected", st.Label())

	_, err = ParseStatus("seated")
	assert.Error(t, err)
}

func TestActionCopy(t *testing.T) {
	title, msg := ActionAccept.Confirmation()
	assert.Equal(t, "Confirm Acceptance", title)
	assert.Contains(t, msg, "accept this reservation")

	assert.True(t, ActionCheckIn.NeedsTimestamp())
	assert.True(t, ActionCheckOut.NeedsTimestamp())
	assert.False(t, ActionCancel.NeedsTimestamp())

	a, err := ParseAction("CHECKOUT")
	require.NoError(t, err)
	assert.Equal(t, ActionCheckOut, a)
	_, err = ParseAction("seat")
	assert.Error(t, err)
}
