// Package push delivers Web Push notifications to users without a live
// connection. Subscriptions live in Redis; delivery uses VAPID.
package push

import (
	"context"
	"encoding/json"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/redis/go-redis/v9"

	"github.com/chatrelay/internal/logger"
)

const (
	redisKeyPrefix  = "push:subs:"
	maxSubsPerUser  = 10
	subscriptionTTL = 30 * 24 * time.Hour
)

// Subscription is the subscription object produced by the browser.
type Subscription struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

// Service stores subscriptions and sends notifications. A Service with no
// Redis client or no VAPID keys is disabled: Subscribe returns nil and Notify
// is a no-op.
type Service struct {
	rdb   *redis.Client
	vapid *webpush.Options
}

// NewService creates a push service. rdb may be nil (pushes disabled); empty
// VAPID keys disable delivery but subscriptions are still stored.
func NewService(rdb *redis.Client, vapidPublic, vapidPrivate string) *Service {
	var opts *webpush.Options
	if vapidPublic != "" && vapidPrivate != "" {
		opts = &webpush.Options{
			Subscriber:      "chatrelay-push",
			VAPIDPublicKey:  vapidPublic,
			VAPIDPrivateKey: vapidPrivate,
			TTL:             30,
		}
	}
	return &Service{rdb: rdb, vapid: opts}
}

// Enabled reports whether pushes can actually be delivered.
func (s *Service) Enabled() bool {
	return s != nil && s.rdb != nil && s.vapid != nil
}

// VAPIDPublicKey returns the public key for browser subscription, or "".
func (s *Service) VAPIDPublicKey() string {
	if s == nil || s.vapid == nil {
		return ""
	}
	return s.vapid.VAPIDPublicKey
}

// Subscribe saves a subscription for user, capped per user with a rolling TTL.
func (s *Service) Subscribe(ctx context.Context, user string, sub Subscription) error {
	if s.rdb == nil {
		return nil
	}
	raw, err := json.Marshal(sub)
	if err != nil {
		return err
	}
	key := redisKeyPrefix + user
	pipe := s.rdb.Pipeline()
	pipe.RPush(ctx, key, string(raw))
	pipe.LTrim(ctx, key, -maxSubsPerUser, -1)
	pipe.Expire(ctx, key, subscriptionTTL)
	_, err = pipe.Exec(ctx)
	return err
}

// Unsubscribe removes the subscription with the given endpoint.
func (s *Service) Unsubscribe(ctx context.Context, user, endpoint string) error {
	if s.rdb == nil {
		return nil
	}
	key := redisKeyPrefix + user
	list, err := s.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return err
	}
	var kept []string
	for _, item := range list {
		var sub Subscription
		if json.Unmarshal([]byte(item), &sub) == nil && sub.Endpoint != endpoint {
			kept = append(kept, item)
		}
	}
	pipe := s.rdb.Pipeline()
	pipe.Del(ctx, key)
	if len(kept) > 0 {
		pipe.RPush(ctx, key, kept)
		pipe.Expire(ctx, key, subscriptionTTL)
	}
	_, err = pipe.Exec(ctx)
	return err
}

type notifyPayload struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// Notify sends a notification to every subscription of user. Expired
// subscriptions (404/410 from the push endpoint) are dropped.
func (s *Service) Notify(ctx context.Context, user, title, body string, data map[string]string) {
	if !s.Enabled() {
		return
	}
	key := redisKeyPrefix + user
	list, err := s.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		logger.Errorf("push subs user=%s: %v", user, err)
		return
	}
	if len(list) == 0 {
		return
	}
	payload, err := json.Marshal(notifyPayload{Title: title, Body: body, Data: data})
	if err != nil {
		return
	}
	for _, item := range list {
		var sub webpush.Subscription
		if err := json.Unmarshal([]byte(item), &sub); err != nil {
			continue
		}
		resp, err := webpush.SendNotificationWithContext(ctx, payload, &sub, s.vapid)
		if err != nil {
			logger.Errorf("push send user=%s: %v", user, err)
			continue
		}
		if resp.StatusCode == 404 || resp.StatusCode == 410 {
			s.dropSubscription(ctx, key, item)
		}
		resp.Body.Close()
	}
}

func (s *Service) dropSubscription(ctx context.Context, key, raw string) {
	if err := s.rdb.LRem(ctx, key, 1, raw).Err(); err != nil {
		logger.Errorf("push drop subscription: %v", err)
	}
}
