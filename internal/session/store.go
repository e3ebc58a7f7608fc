package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/securecookie"
)

// Store persists the session between runs.
type Store interface {
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, st State) error
	Clear(ctx context.Context) error
}

type MemoryStore struct {
	mu    sync.Mutex
	state *State
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) Load(ctx context.Context) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return State{}, ErrNoSession
	}
	return *m.state, nil
}

func (m *MemoryStore) Save(ctx context.Context, st State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = &st
	return nil
}

func (m *MemoryStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = nil
	return nil
}

const fileCodecName = "tablestaff_session"

// FileStore keeps the session in a single file, signed and encrypted with
// securecookie so the bearer token is not readable at rest.
type FileStore struct {
	path string
	sc   *securecookie.SecureCookie
}

func NewFileStore(path string, hashKey, blockKey []byte, maxAge time.Duration) *FileStore {
	sc := securecookie.New(hashKey, blockKey)
	sc.SetSerializer(securecookie.JSONEncoder{})
	sc.MaxAge(int(maxAge.Seconds()))
	// tokens are larger than the 4096 byte cookie default allows once encrypted
	sc.MaxLength(0)
	return &FileStore{path: path, sc: sc}
}

func (f *FileStore) Load(ctx context.Context) (State, error) {
	b, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return State{}, ErrNoSession
	}
	if err != nil {
		return State{}, fmt.Errorf("read session file: %w", err)
	}
	var st State
	if err := f.sc.Decode(fileCodecName, strings.TrimSpace(string(b)), &st); err != nil {
		// expired or written with other keys; treat as logged out
		return State{}, ErrNoSession
	}
	return st, nil
}

func (f *FileStore) Save(ctx context.Context, st State) error {
	enc, err := f.sc.Encode(fileCodecName, st)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(enc+"\n"), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

func (f *FileStore) Clear(ctx context.Context) error {
	err := os.Remove(f.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
