package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"

	"tv-bracket-bot/internal/interfaces"
	"tv-bracket-bot/internal/logger"
	"tv-bracket-bot/internal/store"
)

const (
	connectInitialInterval = 200 * time.Millisecond
	connectMaxInterval     = 5 * time.Second
	connectMaxElapsed      = 30 * time.Second
)

// RedisBus carries payloads over Redis pub/sub.
type RedisBus struct {
	rdb *redis.Client
}

var _ interfaces.Bus = (*RedisBus)(nil)

// NewRedisBus connects to Redis, retrying the initial ping with backoff.
func NewRedisBus(ctx context.Context, cfg store.RelayConfig) (*RedisBus, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = connectInitialInterval
	bo.MaxInterval = connectMaxInterval
	bo.MaxElapsedTime = connectMaxElapsed

	ping := func() error { return rdb.Ping(ctx).Err() }
	notify := func(err error, wait time.Duration) {
		logger.Warn(ctx, "Redis not reachable, retrying", "addr", cfg.RedisAddr, "error", err, "wait", wait)
	}
	if err := backoff.RetryNotify(ping, backoff.WithContext(bo, ctx), notify); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
	}

	logger.Info(ctx, "Connected to Redis", "addr", cfg.RedisAddr, "db", cfg.RedisDB)
	return &RedisBus{rdb: rdb}, nil
}

func newRedisBusWithClient(rdb *redis.Client) *RedisBus {
	return &RedisBus{rdb: rdb}
}

func (r *RedisBus) Publish(ctx context.Context, channel string, payload []byte) (int64, error) {
	n, err := r.rdb.Publish(ctx, channel, payload).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return n, nil
}

// Subscribe delivers payloads to handler in arrival order until ctx is done.
func (r *RedisBus) Subscribe(ctx context.Context, channel string, handler func(payload []byte)) error {
	ps := r.rdb.Subscribe(ctx, channel)
	defer ps.Close()

	if _, err := ps.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}
	logger.Info(ctx, "Subscribed to channel", "channel", channel)

	msgs := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("subscription to %s closed", channel)
			}
			handler([]byte(msg.Payload))
		}
	}
}

func (r *RedisBus) Close() error {
	return r.rdb.Close()
}
