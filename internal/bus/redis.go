package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// Redis implements Bus over a Redis server: PUBLISH/SUBSCRIBE for the
// channel side, plain keys with expiry for the KV side. One PubSub
// connection carries every subscription; a single dispatcher goroutine
// routes incoming messages to the registered handlers.
type Redis struct {
	client *redis.Client
	pubsub *redis.PubSub
	log    zerolog.Logger

	mu       sync.Mutex
	handlers map[string]Handler
}

// NewRedis connects and verifies the server is reachable.
func NewRedis(ctx context.Context, opts Options, log zerolog.Logger) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis %s: %w", opts.Addr, err)
	}

	r := &Redis{
		client:   client,
		pubsub:   client.Subscribe(ctx),
		log:      log.With().Str("component", "bus").Logger(),
		handlers: make(map[string]Handler),
	}
	go r.dispatch()

	r.log.Info().Str("addr", opts.Addr).Int("db", opts.DB).Msg("redis bus connected")
	return r, nil
}

// dispatch fans incoming messages out to handlers until the PubSub closes.
func (r *Redis) dispatch() {
	for msg := range r.pubsub.Channel() {
		r.mu.Lock()
		h := r.handlers[msg.Channel]
		r.mu.Unlock()
		if h == nil {
			r.log.Debug().Str("channel", msg.Channel).Msg("message for unsubscribed channel dropped")
			continue
		}
		h(msg.Channel, []byte(msg.Payload))
	}
}

func (r *Redis) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := r.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}

func (r *Redis) Subscribe(ctx context.Context, channel string, h Handler) error {
	r.mu.Lock()
	if _, ok := r.handlers[channel]; ok {
		r.mu.Unlock()
		return nil
	}
	r.handlers[channel] = h
	r.mu.Unlock()

	if err := r.pubsub.Subscribe(ctx, channel); err != nil {
		r.mu.Lock()
		delete(r.handlers, channel)
		r.mu.Unlock()
		return fmt.Errorf("subscribe %s: %w", channel, err)
	}
	return nil
}

func (r *Redis) Unsubscribe(ctx context.Context, channel string) error {
	r.mu.Lock()
	delete(r.handlers, channel)
	r.mu.Unlock()

	if err := r.pubsub.Unsubscribe(ctx, channel); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", channel, err)
	}
	return nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrNoEntry
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return b, nil
}

func (r *Redis) Del(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("del %s: %w", key, err)
	}
	return nil
}

// Keys walks the keyspace with SCAN rather than the blocking KEYS command.
func (r *Redis) Keys(ctx context.Context, pattern string) ([]string, error) {
	var out []string
	iter := r.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		out = append(out, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", pattern, err)
	}
	return out, nil
}

func (r *Redis) Close() error {
	if err := r.pubsub.Close(); err != nil {
		r.log.Warn().Err(err).Msg("pubsub close")
	}
	return r.client.Close()
}
