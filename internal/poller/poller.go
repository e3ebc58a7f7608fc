// Package poller keeps a reservation view fresh and announces arrivals.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/example/tablestaff/internal/lib/logger/sl"
	"github.com/example/tablestaff/internal/notify"
	"github.com/example/tablestaff/internal/reservation"
	"github.com/example/tablestaff/internal/session"
)

const DefaultInterval = 30 * time.Second

var ErrInactive = errors.New("poller: not active")

type Source interface {
	ListReservations(ctx context.Context) ([]reservation.Reservation, error)
}

// Snapshot is the state a view renders. On a failed fetch the previous
// lists are kept and Err is set.
type Snapshot struct {
	All       []reservation.Reservation
	Visible   []reservation.Reservation
	Counts    reservation.Counts
	NewIDs    []string
	FetchedAt time.Time
	Err       error
}

// Controller polls Source every Interval while active. Bucket selects the
// visible subset; the zero value shows today and upcoming together.
type Controller struct {
	Source   Source
	Session  *session.Session // optional; no fetch without a login
	Bucket   reservation.Bucket
	Interval time.Duration
	Notifier notify.Notifier
	Clock    func() time.Time
	Log      *slog.Logger
	OnUpdate func(Snapshot)

	group singleflight.Group

	mu        sync.Mutex
	active    bool
	gen       uint64
	runCtx    context.Context
	cancel    context.CancelFunc
	unsub     func()
	baselined bool
	seen      map[string]struct{}
	snap      Snapshot
}

// Activate fetches immediately and then every Interval until Deactivate,
// ctx cancellation or session logout. Activating an active controller is a
// no-op.
func (c *Controller) Activate(ctx context.Context) {
	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	c.active = true
	c.gen++
	gen := c.gen
	c.runCtx, c.cancel = ctx, cancel
	// the first fetch of every activation only establishes the baseline;
	// nothing from an earlier activation (possibly another login) survives
	c.baselined = false
	c.seen = nil
	c.snap = Snapshot{}
	c.mu.Unlock()

	if c.Session != nil {
		unsub := c.Session.Subscribe(func(st session.State) {
			if !st.Authenticated {
				c.Deactivate()
				c.clear()
			}
		})
		c.mu.Lock()
		c.unsub = unsub
		c.mu.Unlock()
	}

	go c.run(ctx, gen)
}

// Deactivate stops the timer. In-flight fetches finish but their results
// are dropped. Safe to call more than once.
func (c *Controller) Deactivate() {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	c.active = false
	cancel, unsub := c.cancel, c.unsub
	c.runCtx, c.cancel, c.unsub = nil, nil, nil
	c.mu.Unlock()

	cancel()
	if unsub != nil {
		unsub()
	}
	c.logger().Debug("poller deactivated", slog.String("bucket", string(c.Bucket)))
}

// clear drops the last snapshot unless a new activation has begun.
func (c *Controller) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		c.snap = Snapshot{}
		c.seen = nil
		c.baselined = false
	}
}

func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// RefreshNow fetches outside the interval. A call made while another fetch
// is in flight waits for and shares that fetch's result. The fetch itself
// runs under the activation's context; ctx only bounds the wait.
func (c *Controller) RefreshNow(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	active, gen, runCtx := c.active, c.gen, c.runCtx
	c.mu.Unlock()
	if !active {
		return c.Snapshot(), ErrInactive
	}
	return c.refresh(ctx, runCtx, gen)
}

func (c *Controller) run(ctx context.Context, gen uint64) {
	interval := c.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	// kick immediately
	_, _ = c.refresh(ctx, ctx, gen)

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			_, _ = c.refresh(ctx, ctx, gen)
		}
	}
}

func (c *Controller) refresh(ctx, runCtx context.Context, gen uint64) (Snapshot, error) {
	ch := c.group.DoChan("fetch", func() (any, error) {
		return c.fetch(runCtx, gen)
	})
	select {
	case r := <-ch:
		snap, _ := r.Val.(Snapshot)
		return snap, r.Err
	case <-ctx.Done():
		return c.Snapshot(), ctx.Err()
	}
}

func (c *Controller) fetch(ctx context.Context, gen uint64) (Snapshot, error) {
	log := c.logger()
	if c.Session != nil && !c.Session.Authenticated() {
		log.Debug("poll skipped, no session")
		return c.Snapshot(), nil
	}

	rs, err := c.Source.ListReservations(ctx)

	c.mu.Lock()
	if !c.active || c.gen != gen {
		snap := c.snap
		c.mu.Unlock()
		return snap, ErrInactive
	}
	if err != nil {
		c.snap.Err = err
		snap := c.snap
		c.mu.Unlock()
		log.Warn("poll failed", sl.Err(err))
		c.publish(gen, snap)
		return snap, err
	}

	now := c.now()
	var visible []reservation.Reservation
	if c.Bucket == "" {
		visible = reservation.Current(rs, now, log)
	} else {
		visible = reservation.Filter(rs, c.Bucket, now, log)
	}

	current := make(map[string]struct{}, len(rs))
	for _, r := range rs {
		current[r.ID] = struct{}{}
	}
	var fresh []string
	if c.baselined {
		for _, r := range visible {
			if _, ok := c.seen[r.ID]; !ok {
				fresh = append(fresh, r.ID)
			}
		}
	}
	c.baselined = true
	c.seen = current
	c.snap = Snapshot{
		All:       rs,
		Visible:   visible,
		Counts:    reservation.Count(rs, now, log),
		NewIDs:    fresh,
		FetchedAt: now,
	}
	snap := c.snap
	c.mu.Unlock()

	if len(fresh) > 0 {
		log.Info("new reservations", slog.Int("count", len(fresh)), slog.Any("ids", fresh))
		if c.Notifier != nil && c.stillActive(gen) {
			if err := c.Notifier.Notify(ctx, notify.NewReservations(len(fresh))); err != nil {
				log.Warn("notify failed", sl.Err(err))
			}
		}
	}
	c.publish(gen, snap)
	return snap, nil
}

func (c *Controller) publish(gen uint64, s Snapshot) {
	if c.OnUpdate != nil && c.stillActive(gen) {
		c.OnUpdate(s)
	}
}

func (c *Controller) stillActive(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active && c.gen == gen
}

func (c *Controller) now() time.Time {
	if c.Clock != nil {
		return c.Clock()
	}
	return time.Now()
}

func (c *Controller) logger() *slog.Logger {
	if c.Log != nil {
		return c.Log
	}
	return slog.Default()
}
