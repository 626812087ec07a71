package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	avatarsKey  = "presence:avatars"
	onlineKey   = "presence:online"
	lastSeenKey = "presence:last_seen"
)

type Client struct {
	cli *redis.Client
}

func New(ctx context.Context, url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{cli: cli}, nil
}

func (c *Client) Close() error {
	return c.cli.Close()
}

// Raw exposes the underlying client for collaborators that share the same
// Redis instance (push subscriptions).
func (c *Client) Raw() *redis.Client {
	return c.cli
}

// SetOnline records the user in the online set and stamps last_seen on the
// offline transition.
func (c *Client) SetOnline(ctx context.Context, user string, online bool) error {
	pipe := c.cli.Pipeline()
	if online {
		pipe.SAdd(ctx, onlineKey, user)
	} else {
		pipe.SRem(ctx, onlineKey, user)
		pipe.HSet(ctx, lastSeenKey, user, strconv.FormatInt(time.Now().UTC().Unix(), 10))
	}
	_, err := pipe.Exec(ctx)
	return err
}

// SaveAvatar stores the display metadata under presence:avatars.
func (c *Client) SaveAvatar(ctx context.Context, user, avatarURL string) error {
	return c.cli.HSet(ctx, avatarsKey, user, avatarURL).Err()
}

// Avatars returns all stored display metadata.
func (c *Client) Avatars(ctx context.Context) (map[string]string, error) {
	m, err := c.cli.HGetAll(ctx, avatarsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis avatars: %w", err)
	}
	return m, nil
}

// FlushOnline clears the online set, used at startup: nobody is connected to a
// relay that just booted.
func (c *Client) FlushOnline(ctx context.Context) error {
	return c.cli.Del(ctx, onlineKey).Err()
}
