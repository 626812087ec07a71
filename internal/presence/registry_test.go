package presence

import (
	"sync"
	"testing"
)

func TestRegisterFlipsOnline(t *testing.T) {
	r := NewRegistry[int](nil)

	if r.Online("alice") {
		t.Fatal("alice should start offline")
	}
	if _, superseded := r.Register("alice", 1, "a.png"); superseded {
		t.Fatal("first registration must not supersede anything")
	}
	if !r.Online("alice") {
		t.Fatal("alice should be online after register")
	}
	h, ok := r.Lookup("alice")
	if !ok || h != 1 {
		t.Fatalf("Lookup = (%v, %v), want (1, true)", h, ok)
	}
	if got := r.Avatar("alice"); got != "a.png" {
		t.Fatalf("Avatar = %q, want a.png", got)
	}
}

func TestUnregisterFlipsOffline(t *testing.T) {
	r := NewRegistry[int](nil)
	r.Register("alice", 1, "")

	if !r.Unregister("alice", 1) {
		t.Fatal("unregister of current handle must report removal")
	}
	if r.Online("alice") {
		t.Fatal("alice should be offline after unregister")
	}
	if _, ok := r.Lookup("alice"); ok {
		t.Fatal("Lookup should miss after unregister")
	}
	// Offline status entry is retained for bootstrap snapshots.
	if got := r.Statuses()["alice"]; got != StatusOffline {
		t.Fatalf("status = %q, want offline", got)
	}
}

func TestSecondRegistrationSupersedes(t *testing.T) {
	r := NewRegistry[int](nil)
	r.Register("alice", 1, "")

	prev, superseded := r.Register("alice", 2, "")
	if !superseded || prev != 1 {
		t.Fatalf("Register = (%v, %v), want (1, true)", prev, superseded)
	}
	h, _ := r.Lookup("alice")
	if h != 2 {
		t.Fatalf("Lookup = %v, want 2", h)
	}
}

func TestStaleUnregisterIsNoOp(t *testing.T) {
	r := NewRegistry[int](nil)
	r.Register("alice", 1, "")
	r.Register("alice", 2, "")

	// The unregister for the superseded handle arrives late.
	if r.Unregister("alice", 1) {
		t.Fatal("stale unregister must not remove the newer binding")
	}
	if !r.Online("alice") {
		t.Fatal("alice must stay online after a stale unregister")
	}
	if !r.Unregister("alice", 2) {
		t.Fatal("unregister of the current handle must succeed")
	}
	if r.Online("alice") {
		t.Fatal("alice should be offline")
	}
}

func TestUnregisterUnknownUser(t *testing.T) {
	r := NewRegistry[int](nil)
	if r.Unregister("ghost", 1) {
		t.Fatal("unregister of an unknown user must be a no-op")
	}
}

func TestPublisherSeesTransitions(t *testing.T) {
	pub := NewPublisher()
	var events []Event
	pub.Subscribe(func(ev Event) { events = append(events, ev) })

	r := NewRegistry[int](pub)
	r.Register("alice", 1, "a.png")
	r.Unregister("alice", 1)
	r.Register("alice", 2, "")
	r.Unregister("alice", 1) // stale: no event

	want := []Event{
		{User: "alice", Status: StatusOnline, Avatar: "a.png"},
		{User: "alice", Status: StatusOffline, Avatar: "a.png"},
		{User: "alice", Status: StatusOnline, Avatar: "a.png"},
	}
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d: %v", len(events), len(want), events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event %d = %+v, want %+v", i, events[i], want[i])
		}
	}
}

func TestSeedAvatarsDoesNotOverride(t *testing.T) {
	r := NewRegistry[int](nil)
	r.Register("alice", 1, "live.png")
	r.SeedAvatars(map[string]string{"alice": "stale.png", "bob": "b.png"})

	if got := r.Avatar("alice"); got != "live.png" {
		t.Fatalf("alice avatar = %q, want live.png", got)
	}
	if got := r.Avatar("bob"); got != "b.png" {
		t.Fatalf("bob avatar = %q, want b.png", got)
	}
}

// TestConcurrentRegisterUnregister issues 1000 register/unregister pairs for
// 50 distinct users from concurrent goroutines. Each user's operations come
// from a single goroutine, so "last-issued operation" is well defined per
// user; the final online set must match exactly.
func TestConcurrentRegisterUnregister(t *testing.T) {
	const (
		users        = 50
		pairsPerUser = 20
	)
	r := NewRegistry[int](nil)

	names := make([]string, users)
	for i := range names {
		names[i] = "user" + string(rune('A'+i%26)) + string(rune('0'+i/26))
	}

	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		endOnline := i%2 == 0
		go func(name string, endOnline bool) {
			defer wg.Done()
			for p := 0; p < pairsPerUser; p++ {
				h := p + 1
				r.Register(name, h, "")
				if p < pairsPerUser-1 || !endOnline {
					r.Unregister(name, h)
				}
			}
		}(name, endOnline)
	}
	wg.Wait()

	statuses := r.Statuses()
	for i, name := range names {
		wantOnline := i%2 == 0
		if got := r.Online(name); got != wantOnline {
			t.Errorf("%s online = %v, want %v", name, got, wantOnline)
		}
		wantStatus := StatusOffline
		if wantOnline {
			wantStatus = StatusOnline
		}
		if statuses[name] != wantStatus {
			t.Errorf("%s status = %q, want %q", name, statuses[name], wantStatus)
		}
	}
}
