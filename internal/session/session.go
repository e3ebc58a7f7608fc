// Package session holds the authenticated staff user, the restaurant scope
// and the bearer token for the running process.
package session

import (
	"context"
	"errors"
	"sync"
)

var ErrNoSession = errors.New("no active session")

type User struct {
	ID           string `json:"uuid"`
	RestaurantID string `json:"res_uuid"`
	Name         string `json:"name,omitempty"`
	Email        string `json:"email,omitempty"`
}

type State struct {
	User          User   `json:"user"`
	Token         string `json:"token"`
	Authenticated bool   `json:"authenticated"`
}

func (s State) UserID() string       { return s.User.ID }
func (s State) RestaurantID() string { return s.User.RestaurantID }

// Session is shared by every component that needs the restaurant scope or
// the token. Only Login and Logout mutate it.
type Session struct {
	store Store

	mu    sync.RWMutex
	state State
	subs  map[int]func(State)
	next  int
}

func New(store Store) *Session {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Session{store: store, subs: make(map[int]func(State))}
}

// Restore loads a previously persisted session. A missing one is not an
// error; the session simply stays empty.
func (s *Session) Restore(ctx context.Context) error {
	st, err := s.store.Load(ctx)
	if errors.Is(err, ErrNoSession) {
		return nil
	}
	if err != nil {
		return err
	}
	if st.Token == "" || st.RestaurantID() == "" {
		return nil
	}
	st.Authenticated = true
	s.set(st)
	return nil
}

// Login persists and activates st.
func (s *Session) Login(ctx context.Context, st State) error {
	if st.Token == "" {
		return errors.New("session: login without token")
	}
	st.Authenticated = true
	if err := s.store.Save(ctx, st); err != nil {
		return err
	}
	s.set(st)
	return nil
}

// Logout clears the persisted token and resets the session to empty.
// Subscribers are told even when the store fails to clear.
func (s *Session) Logout(ctx context.Context) error {
	err := s.store.Clear(ctx)
	s.set(State{})
	return err
}

func (s *Session) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) Authenticated() bool {
	return s.Snapshot().Authenticated
}

// Token returns the bearer token, or ErrNoSession.
func (s *Session) Token(ctx context.Context) (string, error) {
	st := s.Snapshot()
	if !st.Authenticated || st.Token == "" {
		return "", ErrNoSession
	}
	return st.Token, nil
}

// Subscribe registers fn to be called after every login and logout.
func (s *Session) Subscribe(fn func(State)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

func (s *Session) set(st State) {
	s.mu.Lock()
	s.state = st
	fns := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(st)
	}
}
