package idle

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"marketplace-auth/internal/logger"

	"github.com/redis/go-redis/v9"
)

// RedisMarkers stores markers as "idle:<sid>" keys and broadcasts writes on
// "idle:events:<sid>", so monitors in other processes see them.
type RedisMarkers struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisMarkers(client redis.UniversalClient, ttl time.Duration) *RedisMarkers {
	return &RedisMarkers{client: client, ttl: ttl}
}

func (r *RedisMarkers) For(sessionID string) Marker {
	return &RedisMarker{
		client:  r.client,
		key:     "idle:" + sessionID,
		channel: "idle:events:" + sessionID,
		ttl:     r.ttl,
	}
}

type RedisMarker struct {
	client  redis.UniversalClient
	key     string
	channel string
	ttl     time.Duration
}

func (m *RedisMarker) Load(ctx context.Context) (time.Time, bool, error) {
	val, err := m.client.Get(ctx, m.key).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("idle: load marker: %w", err)
	}

	at, err := parseMillis(val)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("idle: corrupt marker: %w", err)
	}
	return at, true, nil
}

func (m *RedisMarker) Touch(ctx context.Context, at time.Time) error {
	val := strconv.FormatInt(at.UnixMilli(), 10)

	_, err := m.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, m.key, val, m.ttl)
		p.Publish(ctx, m.channel, val)
		return nil
	})
	if err != nil {
		return fmt.Errorf("idle: touch marker: %w", err)
	}
	return nil
}

func (m *RedisMarker) Clear(ctx context.Context) error {
	return m.client.Del(ctx, m.key).Err()
}

func (m *RedisMarker) Watch(ctx context.Context, fn func(time.Time)) (func(), error) {
	ps := m.client.Subscribe(ctx, m.channel)

	// Wait for the subscription to be confirmed so no write is missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("idle: subscribe %s: %w", m.channel, err)
	}

	ch := ps.Channel()
	go func() {
		for msg := range ch {
			at, err := parseMillis(msg.Payload)
			if err != nil {
				logger.Warn("ignoring malformed activity event", map[string]any{
					"channel": m.channel,
				})
				continue
			}
			fn(at)
		}
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() { _ = ps.Close() })
	}
	context.AfterFunc(ctx, stop)
	return stop, nil
}

func parseMillis(s string) (time.Time, error) {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}
