package memory

import (
	"context"
	"sync"
	"time"
)

// Client is the in-process ProfileStore used when no Redis is configured.
type Client struct {
	mu       sync.RWMutex
	avatars  map[string]string
	online   map[string]struct{}
	lastSeen map[string]time.Time
}

func New() *Client {
	return &Client{
		avatars:  make(map[string]string),
		online:   make(map[string]struct{}),
		lastSeen: make(map[string]time.Time),
	}
}

func (c *Client) Close() error { return nil }

func (c *Client) SetOnline(ctx context.Context, user string, online bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if online {
		c.online[user] = struct{}{}
	} else {
		delete(c.online, user)
		c.lastSeen[user] = time.Now().UTC()
	}
	return nil
}

func (c *Client) SaveAvatar(ctx context.Context, user, avatarURL string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.avatars[user] = avatarURL
	return nil
}

func (c *Client) Avatars(ctx context.Context) (map[string]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string, len(c.avatars))
	for u, a := range c.avatars {
		out[u] = a
	}
	return out, nil
}
