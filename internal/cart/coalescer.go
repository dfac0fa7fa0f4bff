package cart

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

var ErrCoalescerClosed = errors.New("cart coalescer closed")

// Store persists the server-side copy of a user's cart.
type Store interface {
	Load(ctx context.Context, userID string) ([]Line, error)
	Replace(ctx context.Context, userID string, lines []Line) error
}

// Coalescer delays cart writes per user and keeps only the latest one submitted inside the
// window. Timers belong to the instance; two coalescers never share state.
type Coalescer struct {
	store        Store
	window       time.Duration
	writeTimeout time.Duration

	mu      sync.Mutex
	entries map[string]*entry
	seq     uint64
	closed  bool
}

type entry struct {
	write sync.Mutex // serializes writes of one user

	// guarded by Coalescer.mu
	lines []Line
	dirty bool
	timer *time.Timer
	gen   uint64
	refs  int
}

func NewCoalescer(store Store, window time.Duration) *Coalescer {
	return &Coalescer{
		store:        store,
		window:       window,
		writeTimeout: 5 * time.Second,
		entries:      make(map[string]*entry),
	}
}

// Submit replaces the pending write for userID and restarts its window.
func (c *Coalescer) Submit(userID string, lines []Line) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrCoalescerClosed
	}
	e, ok := c.entries[userID]
	if !ok {
		e = &entry{}
		c.entries[userID] = e
	}
	e.lines = append([]Line(nil), lines...)
	e.dirty = true
	if e.timer != nil {
		e.timer.Stop()
	}
	c.arm(userID, e)
	return nil
}

// arm starts a new window for e. Caller holds c.mu.
func (c *Coalescer) arm(userID string, e *entry) {
	c.seq++
	gen := c.seq
	e.gen = gen
	e.timer = time.AfterFunc(c.window, func() { c.fired(userID, gen) })
}

// Pending returns the not-yet-written cart for userID, if any.
func (c *Coalescer) Pending(userID string) ([]Line, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[userID]
	if !ok || !e.dirty {
		return nil, false
	}
	return append([]Line(nil), e.lines...), true
}

// Load returns the pending cart when there is one, the stored cart otherwise.
func (c *Coalescer) Load(ctx context.Context, userID string) ([]Line, error) {
	if lines, ok := c.Pending(userID); ok {
		return lines, nil
	}
	return c.store.Load(ctx, userID)
}

// Flush writes userID's pending cart now.
func (c *Coalescer) Flush(ctx context.Context, userID string) error {
	c.mu.Lock()
	if e, ok := c.entries[userID]; ok && e.timer != nil {
		e.timer.Stop()
		e.timer = nil
		e.gen = 0
	}
	c.mu.Unlock()
	return c.flush(ctx, userID)
}

// Close stops the timers and writes everything still pending.
func (c *Coalescer) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	keys := make([]string, 0, len(c.entries))
	for k, e := range c.entries {
		if e.timer != nil {
			e.timer.Stop()
			e.timer = nil
			e.gen = 0
		}
		keys = append(keys, k)
	}
	c.mu.Unlock()

	var errs []error
	for _, k := range keys {
		if err := c.flush(ctx, k); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Coalescer) fired(userID string, gen uint64) {
	c.mu.Lock()
	e, ok := c.entries[userID]
	if !ok || e.gen != gen {
		// superseded by a later Submit or already flushed
		c.mu.Unlock()
		return
	}
	e.timer = nil
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.writeTimeout)
	defer cancel()
	if err := c.flush(ctx, userID); err != nil {
		log.Printf("cart flush user=%s: %v", userID, err)
	}
}

func (c *Coalescer) flush(ctx context.Context, userID string) error {
	c.mu.Lock()
	e, ok := c.entries[userID]
	if !ok {
		c.mu.Unlock()
		return nil
	}
	e.refs++
	c.mu.Unlock()

	e.write.Lock()
	c.mu.Lock()
	lines, dirty := e.lines, e.dirty
	e.dirty = false
	c.mu.Unlock()

	var err error
	if dirty {
		err = c.store.Replace(ctx, userID, lines)
	}
	e.write.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil && !e.dirty {
		// keep it for the next flush unless a newer cart already replaced it
		e.lines, e.dirty = lines, true
	}
	if err != nil && e.timer == nil && !c.closed {
		// retry one window later instead of waiting for the next Submit
		c.arm(userID, e)
	}
	e.refs--
	if e.refs == 0 && !e.dirty && e.timer == nil {
		delete(c.entries, userID)
	}
	return err
}
