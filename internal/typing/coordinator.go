// Package typing tracks ephemeral per-(sender, target) typing sessions with an
// inactivity timeout. The coordinator owns all timer state; it never persists
// anything.
package typing

import (
	"sync"
	"time"
)

// DefaultTimeout is the inactivity window after which a typing session expires
// as if the sender had stopped explicitly.
const DefaultTimeout = 1000 * time.Millisecond

// Key identifies one typing session: a sender typing at a direct peer or into
// a group.
type Key struct {
	Sender string
	Target string
	Group  bool
}

type session struct {
	timer *time.Timer
	gen   uint64
}

// Coordinator is a per-key idle -> typing -> idle state machine. For a given
// key the expired callback and Stop are mutually exclusive per transition: a
// late timer firing after an explicit stop (or after a refresh) is discarded
// by the generation check.
type Coordinator struct {
	mu       sync.Mutex
	timeout  time.Duration
	sessions map[Key]*session
	expired  func(Key)
}

// New creates a coordinator. expired is invoked, outside the coordinator's
// lock, when a session times out without a refresh or explicit stop. A
// timeout <= 0 falls back to DefaultTimeout.
func New(timeout time.Duration, expired func(Key)) *Coordinator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Coordinator{
		timeout:  timeout,
		sessions: make(map[Key]*session),
		expired:  expired,
	}
}

// Touch starts or refreshes the typing session for k and (re)schedules its
// expiry timer. Returns true only on the idle -> typing transition, so the
// caller emits at most one start notification per burst.
func (c *Coordinator) Touch(k Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[k]
	if ok {
		s.timer.Stop()
		s.gen++
		gen := s.gen
		s.timer = time.AfterFunc(c.timeout, func() { c.expire(k, gen) })
		return false
	}
	s = &session{}
	c.sessions[k] = s
	gen := s.gen
	s.timer = time.AfterFunc(c.timeout, func() { c.expire(k, gen) })
	return true
}

// Stop cancels the session for k immediately. Returns true when a typing ->
// idle transition happened and a stop notification should be emitted;
// idempotent otherwise.
func (c *Coordinator) Stop(k Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[k]
	if !ok {
		return false
	}
	s.timer.Stop()
	delete(c.sessions, k)
	return true
}

// Active reports whether a typing session for k is currently open.
func (c *Coordinator) Active(k Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.sessions[k]
	return ok
}

func (c *Coordinator) expire(k Key, gen uint64) {
	c.mu.Lock()
	s, ok := c.sessions[k]
	if !ok || s.gen != gen {
		// Refreshed or stopped while the timer was firing.
		c.mu.Unlock()
		return
	}
	delete(c.sessions, k)
	c.mu.Unlock()
	c.expired(k)
}

// Shutdown cancels every outstanding timer without emitting stop signals.
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, s := range c.sessions {
		s.timer.Stop()
		delete(c.sessions, k)
	}
}
