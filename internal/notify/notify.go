// Package notify delivers local "new reservations" notifications.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

type Notification struct {
	Title string
	Body  string
	Count int
	At    time.Time

	Sound   bool
	Volume  float64
	Vibrate bool
}

// NewReservations builds the single batched notification for n arrivals.
func NewReservations(n int) Notification {
	if n == 1 {
		return Notification{Title: "New Reservation", Body: "You have 1 new reservation.", Count: 1}
	}
	return Notification{
		Title: "New Reservations",
		Body:  fmt.Sprintf("You have %d new reservations.", n),
		Count: n,
	}
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, n Notification) error

func (f Func) Notify(ctx context.Context, n Notification) error { return f(ctx, n) }

type Permission int

const (
	PermissionUndetermined Permission = iota
	PermissionGranted
	PermissionDenied
)

func (p Permission) String() string {
	switch p {
	case PermissionGranted:
		return "granted"
	case PermissionDenied:
		return "denied"
	}
	return "undetermined"
}

// Preferences mirror the sounds settings screen.
type Preferences struct {
	Sound   bool
	Volume  float64 // 0..1
	Vibrate bool
}

func DefaultPreferences() Preferences {
	return Preferences{Sound: true, Volume: 0.5, Vibrate: true}
}

// Local gates delivery on an explicit permission grant and on the app being
// in the foreground, then hands the notification to its sinks.
type Local struct {
	sinks []Sink
	log   *slog.Logger
	now   func() time.Time

	mu         sync.Mutex
	permission Permission
	foreground bool
	prefs      Preferences
}

func NewLocal(log *slog.Logger, sinks ...Sink) *Local {
	if log == nil {
		log = slog.Default()
	}
	return &Local{
		sinks:      sinks,
		log:        log,
		now:        time.Now,
		foreground: true,
		prefs:      DefaultPreferences(),
	}
}

// RequestPermission asks once; later calls return the remembered answer.
func (l *Local) RequestPermission(ask func() bool) Permission {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.permission != PermissionUndetermined {
		return l.permission
	}
	if ask != nil && ask() {
		l.permission = PermissionGranted
	} else {
		l.permission = PermissionDenied
	}
	l.log.Info("notification permission", slog.String("permission", l.permission.String()))
	return l.permission
}

func (l *Local) SetPermission(granted bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if granted {
		l.permission = PermissionGranted
	} else {
		l.permission = PermissionDenied
	}
}

func (l *Local) Permission() Permission {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.permission
}

// SetForeground records whether anyone is looking at the app.
func (l *Local) SetForeground(fg bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.foreground = fg
}

func (l *Local) Foreground() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.foreground
}

func (l *Local) SetPreferences(p Preferences) {
	if p.Volume < 0 {
		p.Volume = 0
	}
	if p.Volume > 1 {
		p.Volume = 1
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prefs = p
}

func (l *Local) Preferences() Preferences {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.prefs
}

func (l *Local) Notify(ctx context.Context, n Notification) error {
	l.mu.Lock()
	perm, fg, prefs := l.permission, l.foreground, l.prefs
	l.mu.Unlock()

	if perm != PermissionGranted {
		l.log.Debug("notification suppressed", slog.String("reason", "permission "+perm.String()), slog.Int("count", n.Count))
		return nil
	}
	if !fg {
		l.log.Debug("notification suppressed", slog.String("reason", "background"), slog.Int("count", n.Count))
		return nil
	}

	if n.At.IsZero() {
		n.At = l.now()
	}
	n.Sound = prefs.Sound && prefs.Volume > 0
	n.Volume = prefs.Volume
	n.Vibrate = prefs.Vibrate

	var errs []error
	for _, s := range l.sinks {
		if err := s.Deliver(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Sink is where an accepted notification ends up.
type Sink interface {
	Deliver(ctx context.Context, n Notification) error
}

type LogSink struct{ Log *slog.Logger }

func (s LogSink) Deliver(ctx context.Context, n Notification) error {
	s.Log.Info(n.Title, slog.String("body", n.Body), slog.Int("count", n.Count))
	return nil
}

// WriterSink prints notifications on a terminal, ringing the bell when sound
// is on.
type WriterSink struct {
	W io.Writer
}

func (s WriterSink) Deliver(ctx context.Context, n Notification) error {
	bell := ""
	if n.Sound {
		bell = "\a"
	}
	_, err := fmt.Fprintf(s.W, "%s[%s] %s: %s\n", bell, n.At.Format("15:04:05"), n.Title, n.Body)
	return err
}

// Feed keeps the most recent notifications for the web console.
type Feed struct {
	mu     sync.Mutex
	size   int
	items  []Notification
	unread int
}

func NewFeed(size int) *Feed {
	if size < 1 {
		size = 20
	}
	return &Feed{size: size}
}

func (f *Feed) Deliver(ctx context.Context, n Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, n)
	if len(f.items) > f.size {
		f.items = f.items[len(f.items)-f.size:]
	}
	f.unread++
	return nil
}

// Recent returns notifications newest first.
func (f *Feed) Recent() []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Notification, len(f.items))
	for i, n := range f.items {
		out[len(f.items)-1-i] = n
	}
	return out
}

// Unread reports the count TakeUnread would return without resetting it.
func (f *Feed) Unread() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unread
}

// TakeUnread returns how many notifications arrived since the last call.
func (f *Feed) TakeUnread() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.unread
	f.unread = 0
	return n
}
