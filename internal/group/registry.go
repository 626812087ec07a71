// Package group owns the group-name to member-set mapping. Membership is
// independent of connection liveness: members may be offline. There is no
// leave or delete operation; member sets only accumulate.
package group

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrNotFound is returned by Join when the group does not exist.
var ErrNotFound = errors.New("group not found")

// Group is a read-only snapshot of one group.
type Group struct {
	Name      string    `json:"name"`
	Creator   string    `json:"creator"`
	CreatedAt time.Time `json:"created_at"`
	Members   []string  `json:"members"`
}

type record struct {
	creator   string
	createdAt time.Time
	members   []string            // insertion order, for UI display
	memberSet map[string]struct{} // duplicate guard
}

func (rec *record) snapshot(name string) Group {
	members := make([]string, len(rec.members))
	copy(members, rec.members)
	return Group{Name: name, Creator: rec.creator, CreatedAt: rec.createdAt, Members: members}
}

// Registry maps group names to member sets. All operations are atomic with
// respect to each other.
type Registry struct {
	mu     sync.RWMutex
	groups map[string]*record
}

func NewRegistry() *Registry {
	return &Registry{groups: make(map[string]*record)}
}

// Create creates the group with creator as its only member. Returns false
// without mutating anything if the group already exists (test-and-set, not an
// error).
func (r *Registry) Create(name, creator string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.groups[name]; ok {
		return false
	}
	r.groups[name] = &record{
		creator:   creator,
		createdAt: time.Now().UTC(),
		members:   []string{creator},
		memberSet: map[string]struct{}{creator: {}},
	}
	return true
}

// Join adds user to the group's member set and returns the resulting members.
// Rejoining is a no-op. Returns ErrNotFound, with no mutation, if the group
// does not exist.
func (r *Registry) Join(name, user string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.groups[name]
	if !ok {
		return nil, ErrNotFound
	}
	if _, member := rec.memberSet[user]; !member {
		rec.memberSet[user] = struct{}{}
		rec.members = append(rec.members, user)
	}
	members := make([]string, len(rec.members))
	copy(members, rec.members)
	return members, nil
}

// Members returns a snapshot of the group's member set.
func (r *Registry) Members(name string) ([]string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.groups[name]
	if !ok {
		return nil, false
	}
	members := make([]string, len(rec.members))
	copy(members, rec.members)
	return members, true
}

// Names returns all group names, sorted for stable bootstrap replies.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.groups))
	for name := range r.groups {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Snapshot returns read-only copies of all groups, sorted by name.
func (r *Registry) Snapshot() []Group {
	r.mu.RLock()
	out := make([]Group, 0, len(r.groups))
	for name, rec := range r.groups {
		out = append(out, rec.snapshot(name))
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
