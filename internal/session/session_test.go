package session

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loggedIn() State {
	return State{
		User:  User{ID: "user-1", RestaurantID: "rest-9", Name: "Aditi"},
		Token: "tok",
	}
}

func TestLoginLogoutNotifies(t *testing.T) {
	ctx := context.Background()
	s := New(nil)

	var seen []State
	unsub := s.Subscribe(func(st State) { seen = append(seen, st) })
	defer unsub()

	_, err := s.Token(ctx)
	assert.True(t, errors.Is(err, ErrNoSession))

	require.NoError(t, s.Login(ctx, loggedIn()))
	tok, err := s.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok", tok)
	assert.Equal(t, "rest-9", s.Snapshot().RestaurantID())

	require.NoError(t, s.Logout(ctx))
	assert.False(t, s.Authenticated())
	assert.Equal(t, State{}, s.Snapshot())

	require.Len(t, seen, 2)
	assert.True(t, seen[0].Authenticated)
	assert.False(t, seen[1].Authenticated)
}

func TestLoginRequiresToken(t *testing.T) {
	s := New(nil)
	err := s.Login(context.Background(), State{User: User{ID: "u"}})
	assert.Error(t, err)
	assert.False(t, s.Authenticated())
}

func TestUnsubscribe(t *testing.T) {
	s := New(nil)
	calls := 0
	unsub := s.Subscribe(func(State) { calls++ })
	unsub()
	unsub()
	require.NoError(t, s.Login(context.Background(), loggedIn()))
	assert.Equal(t, 0, calls)
}

func TestRestoreFromStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Save(ctx, loggedIn()))

	s := New(store)
	require.NoError(t, s.Restore(ctx))
	assert.True(t, s.Authenticated())

	empty := New(NewMemoryStore())
	require.NoError(t, empty.Restore(ctx))
	assert.False(t, empty.Authenticated())
}

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "session")
	hash := securecookie.GenerateRandomKey(32)
	block := securecookie.GenerateRandomKey(32)

	fs := NewFileStore(path, hash, block, time.Hour)
	_, err := fs.Load(ctx)
	assert.True(t, errors.Is(err, ErrNoSession))

	require.NoError(t, fs.Save(ctx, loggedIn()))
	st, err := fs.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok", st.Token)
	assert.Equal(t, "rest-9", st.RestaurantID())

	other := NewFileStore(path, securecookie.GenerateRandomKey(32), block, time.Hour)
	_, err = other.Load(ctx)
	assert.True(t, errors.Is(err, ErrNoSession))

	require.NoError(t, fs.Clear(ctx))
	require.NoError(t, fs.Clear(ctx))
	_, err = fs.Load(ctx)
	assert.True(t, errors.Is(err, ErrNoSession))
}
