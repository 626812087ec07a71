package typing

import (
	"sync"
	"testing"
	"time"
)

const testTimeout = 50 * time.Millisecond

type recorder struct {
	mu   sync.Mutex
	keys []Key
}

func (r *recorder) expired(k Key) {
	r.mu.Lock()
	r.keys = append(r.keys, k)
	r.mu.Unlock()
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.keys)
}

func TestTouchStartsOnce(t *testing.T) {
	rec := &recorder{}
	c := New(testTimeout, rec.expired)
	defer c.Shutdown()

	k := Key{Sender: "alice", Target: "bob"}
	if !c.Touch(k) {
		t.Fatal("first Touch must report the idle->typing transition")
	}
	if c.Touch(k) {
		t.Fatal("refresh must not report a new transition")
	}
	if !c.Active(k) {
		t.Fatal("session should be active")
	}
}

func TestTimeoutEmitsExactlyOneStop(t *testing.T) {
	rec := &recorder{}
	c := New(testTimeout, rec.expired)
	defer c.Shutdown()

	k := Key{Sender: "alice", Target: "bob"}
	c.Touch(k)

	time.Sleep(4 * testTimeout)
	if got := rec.count(); got != 1 {
		t.Fatalf("expiries = %d, want 1", got)
	}
	if c.Active(k) {
		t.Fatal("session must be gone after expiry")
	}
	// After expiry the next Touch is a fresh idle->typing transition.
	if !c.Touch(k) {
		t.Fatal("Touch after expiry must start a new session")
	}
}

func TestExplicitStopCancelsTimer(t *testing.T) {
	rec := &recorder{}
	c := New(testTimeout, rec.expired)
	defer c.Shutdown()

	k := Key{Sender: "alice", Target: "bob"}
	c.Touch(k)
	if !c.Stop(k) {
		t.Fatal("Stop of an active session must report the transition")
	}
	if c.Stop(k) {
		t.Fatal("second Stop must be idempotent")
	}

	time.Sleep(4 * testTimeout)
	if got := rec.count(); got != 0 {
		t.Fatalf("expiries after explicit stop = %d, want 0 (never both)", got)
	}
}

func TestRefreshDefersExpiry(t *testing.T) {
	rec := &recorder{}
	c := New(testTimeout, rec.expired)
	defer c.Shutdown()

	k := Key{Sender: "alice", Target: "bob"}
	c.Touch(k)
	time.Sleep(testTimeout / 2)
	c.Touch(k)
	time.Sleep(testTimeout / 2)

	// The original deadline has passed but the refresh moved it.
	if got := rec.count(); got != 0 {
		t.Fatalf("expiries = %d, want 0 before the refreshed deadline", got)
	}

	time.Sleep(4 * testTimeout)
	if got := rec.count(); got != 1 {
		t.Fatalf("expiries = %d, want exactly 1", got)
	}
}

func TestKeysAreIndependent(t *testing.T) {
	rec := &recorder{}
	c := New(testTimeout, rec.expired)
	defer c.Shutdown()

	direct := Key{Sender: "alice", Target: "bob"}
	grp := Key{Sender: "alice", Target: "devs", Group: true}
	c.Touch(direct)
	c.Touch(grp)

	if !c.Stop(direct) {
		t.Fatal("direct session should stop")
	}
	if !c.Active(grp) {
		t.Fatal("group session must be unaffected")
	}

	time.Sleep(4 * testTimeout)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.keys) != 1 || rec.keys[0] != grp {
		t.Fatalf("expired keys = %v, want only the group session", rec.keys)
	}
}

func TestShutdownSilencesTimers(t *testing.T) {
	rec := &recorder{}
	c := New(testTimeout, rec.expired)

	c.Touch(Key{Sender: "alice", Target: "bob"})
	c.Touch(Key{Sender: "bob", Target: "alice"})
	c.Shutdown()

	time.Sleep(4 * testTimeout)
	if got := rec.count(); got != 0 {
		t.Fatalf("expiries after shutdown = %d, want 0", got)
	}
}
