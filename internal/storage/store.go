package storage

import "context"

// ProfileStore mirrors presence transitions and user display metadata so they
// survive relay restarts and are visible to sibling services. The relay's
// in-memory registries stay the source of truth during live routing; writes
// here are best-effort.
// Implementations: redis.Client, memory.Client (for -dev without Redis).
type ProfileStore interface {
	SetOnline(ctx context.Context, user string, online bool) error
	SaveAvatar(ctx context.Context, user, avatarURL string) error
	Avatars(ctx context.Context) (map[string]string, error)
	Close() error
}
