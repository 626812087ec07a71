package group

import (
	"errors"
	"reflect"
	"testing"
)

func TestCreateIsTestAndSet(t *testing.T) {
	r := NewRegistry()

	if !r.Create("devs", "alice") {
		t.Fatal("first create must succeed")
	}
	if r.Create("devs", "bob") {
		t.Fatal("second create must be a no-op")
	}

	members, ok := r.Members("devs")
	if !ok {
		t.Fatal("group should exist")
	}
	if !reflect.DeepEqual(members, []string{"alice"}) {
		t.Fatalf("members = %v, want [alice]", members)
	}

	groups := r.Snapshot()
	if len(groups) != 1 || groups[0].Creator != "alice" {
		t.Fatalf("snapshot = %+v, want single group created by alice", groups)
	}
	if groups[0].CreatedAt.IsZero() {
		t.Fatal("creation timestamp must be set")
	}
}

func TestJoinIsIdempotent(t *testing.T) {
	r := NewRegistry()
	r.Create("devs", "alice")

	first, err := r.Join("devs", "bob")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	second, err := r.Join("devs", "bob")
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	want := []string{"alice", "bob"}
	if !reflect.DeepEqual(first, want) || !reflect.DeepEqual(second, want) {
		t.Fatalf("join results = %v / %v, want %v both times", first, second, want)
	}
}

func TestJoinUnknownGroup(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Join("ghosts", "alice"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if _, ok := r.Members("ghosts"); ok {
		t.Fatal("failed join must not create the group")
	}
}

func TestNamesSortedAndUnique(t *testing.T) {
	r := NewRegistry()
	r.Create("zeta", "a")
	r.Create("alpha", "a")
	r.Create("zeta", "b") // no-op

	if got, want := r.Names(), []string{"alpha", "zeta"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Names = %v, want %v", got, want)
	}
}

func TestMembersSnapshotIsCopy(t *testing.T) {
	r := NewRegistry()
	r.Create("devs", "alice")

	members, _ := r.Members("devs")
	members[0] = "mallory"

	again, _ := r.Members("devs")
	if again[0] != "alice" {
		t.Fatal("mutating a snapshot must not affect the registry")
	}
}
