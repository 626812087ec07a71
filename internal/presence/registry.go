// Package presence owns the user-to-connection bindings and is the source of
// truth for online/offline status. The handle type H is opaque to the
// registry; it is only stored and compared.
package presence

import "sync"

// Registry maps a user identity to its current live connection handle.
// A user has at most one live handle: a second registration under the same
// identity supersedes the first, and the displaced handle is returned to the
// caller for teardown. Status entries are retained after a user goes offline
// so that bootstrap snapshots list everyone ever seen.
type Registry[H comparable] struct {
	mu       sync.RWMutex
	conns    map[string]H
	statuses map[string]Status
	avatars  map[string]string
	pub      *Publisher
}

// NewRegistry creates a registry publishing transitions to pub. pub may be
// nil, in which case transitions are silent.
func NewRegistry[H comparable](pub *Publisher) *Registry[H] {
	return &Registry[H]{
		conns:    make(map[string]H),
		statuses: make(map[string]Status),
		avatars:  make(map[string]string),
		pub:      pub,
	}
}

// Register binds user to h and flips the user online. If the user was already
// bound to a different handle, that binding is replaced and the previous
// handle is returned with superseded=true; the caller is expected to close it.
// A non-empty avatar replaces the stored display metadata.
func (r *Registry[H]) Register(user string, h H, avatar string) (prev H, superseded bool) {
	r.mu.Lock()
	old, had := r.conns[user]
	r.conns[user] = h
	r.statuses[user] = StatusOnline
	if avatar != "" {
		r.avatars[user] = avatar
	}
	av := r.avatars[user]
	r.mu.Unlock()

	if r.pub != nil {
		r.pub.Publish(Event{User: user, Status: StatusOnline, Avatar: av})
	}
	if had && old != h {
		return old, true
	}
	return prev, false
}

// Unregister removes the binding only if the stored handle for user still
// equals h, guarding against a stale unregister arriving after a newer
// registration superseded this handle. Returns true when a binding was
// actually removed (the user went offline).
func (r *Registry[H]) Unregister(user string, h H) bool {
	r.mu.Lock()
	cur, ok := r.conns[user]
	if !ok || cur != h {
		r.mu.Unlock()
		return false
	}
	delete(r.conns, user)
	r.statuses[user] = StatusOffline
	av := r.avatars[user]
	r.mu.Unlock()

	if r.pub != nil {
		r.pub.Publish(Event{User: user, Status: StatusOffline, Avatar: av})
	}
	return true
}

// Lookup returns the live handle for user, if any.
func (r *Registry[H]) Lookup(user string) (H, bool) {
	r.mu.RLock()
	h, ok := r.conns[user]
	r.mu.RUnlock()
	return h, ok
}

// Online reports whether user currently has a live connection.
func (r *Registry[H]) Online(user string) bool {
	r.mu.RLock()
	_, ok := r.conns[user]
	r.mu.RUnlock()
	return ok
}

// Statuses returns a point-in-time snapshot of every known user's status,
// including users that have gone offline.
func (r *Registry[H]) Statuses() map[string]Status {
	r.mu.RLock()
	out := make(map[string]Status, len(r.statuses))
	for u, s := range r.statuses {
		out[u] = s
	}
	r.mu.RUnlock()
	return out
}

// Avatars returns a snapshot of the stored display metadata.
func (r *Registry[H]) Avatars() map[string]string {
	r.mu.RLock()
	out := make(map[string]string, len(r.avatars))
	for u, a := range r.avatars {
		out[u] = a
	}
	r.mu.RUnlock()
	return out
}

// Avatar returns the stored avatar reference for user, if any.
func (r *Registry[H]) Avatar(user string) string {
	r.mu.RLock()
	a := r.avatars[user]
	r.mu.RUnlock()
	return a
}

// SetAvatar replaces the display metadata for user.
func (r *Registry[H]) SetAvatar(user, avatar string) {
	r.mu.Lock()
	r.avatars[user] = avatar
	r.mu.Unlock()
}

// SeedAvatars preloads display metadata, typically from the profile store at
// startup. Existing entries win over seeded ones.
func (r *Registry[H]) SeedAvatars(avatars map[string]string) {
	r.mu.Lock()
	for u, a := range avatars {
		if _, ok := r.avatars[u]; !ok {
			r.avatars[u] = a
		}
	}
	r.mu.Unlock()
}
