package nettable

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/redis/go-redis/v9"

	"github.com/blackknights-robotics/motioncore/internal/monitoring"
)

// KeyPrefix namespaces table hashes and channels in Redis.
const KeyPrefix = "nt:"

// writeQueueLen bounds the pending writes a RedisTable buffers between
// flushes. Writes beyond it are dropped.
const writeQueueLen = 256

// redisClient is the subset of *redis.Client a RedisTable uses.
type redisClient interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	HGet(ctx context.Context, key, field string) *redis.StringCmd
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

type write struct {
	key   string
	value []float64
}

// RedisTable mirrors one table stored as a Redis hash. Every change to a
// field is announced by publishing the field name on a channel named like
// the hash; subscribers re-read that field.
type RedisTable struct {
	*cache
	name    string
	client  redisClient
	writes  chan write
	dropped atomic.Uint64
	log     *monitoring.Logger
}

// NewRedisTable mirrors table name through client. Run must be called to
// receive updates and flush writes.
func NewRedisTable(client *redis.Client, name string) *RedisTable {
	return newRedisTable(client, name)
}

func newRedisTable(client redisClient, name string) *RedisTable {
	return &RedisTable{
		cache:  newCache(),
		name:   name,
		client: client,
		writes: make(chan write, writeQueueLen),
		log:    monitoring.Tagged("nettable"),
	}
}

// Key returns the Redis hash and channel name of the table.
func (t *RedisTable) Key() string { return KeyPrefix + t.name }

// Dropped returns how many writes were discarded because the queue was full.
func (t *RedisTable) Dropped() uint64 { return t.dropped.Load() }

// Keys returns the cached entry names in sorted order.
func (t *RedisTable) Keys() []string { return t.keys() }

// SetNumber updates the local cache and queues the write.
func (t *RedisTable) SetNumber(key string, v float64) { t.SetArray(key, []float64{v}) }

// SetArray updates the local cache and queues the write.
func (t *RedisTable) SetArray(key string, v []float64) {
	t.store(key, v)
	select {
	case t.writes <- write{key: key, value: append([]float64(nil), v...)}:
	default:
		t.dropped.Add(1)
	}
}

// Load replaces the cache contents with the whole hash.
func (t *RedisTable) Load(ctx context.Context) error {
	vals, err := t.client.HGetAll(ctx, t.Key()).Result()
	if err != nil {
		return fmt.Errorf("failed to load table %s: %w", t.name, err)
	}
	for field, raw := range vals {
		v, err := DecodeValue(raw)
		if err != nil {
			t.log.Warnf("table %s: skipping %s: %v", t.name, field, err)
			continue
		}
		t.store(field, v)
	}
	return nil
}

// refresh re-reads one field after a change notification.
func (t *RedisTable) refresh(ctx context.Context, field string) error {
	raw, err := t.client.HGet(ctx, t.Key(), field).Result()
	if errors.Is(err, redis.Nil) {
		t.remove(field)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s/%s: %w", t.name, field, err)
	}
	v, err := DecodeValue(raw)
	if err != nil {
		return fmt.Errorf("%s/%s: %w", t.name, field, err)
	}
	t.store(field, v)
	return nil
}

func (t *RedisTable) flush(ctx context.Context, w write) error {
	if err := t.client.HSet(ctx, t.Key(), w.key, EncodeValue(w.value)).Err(); err != nil {
		return fmt.Errorf("failed to write %s/%s: %w", t.name, w.key, err)
	}
	if err := t.client.Publish(ctx, t.Key(), w.key).Err(); err != nil {
		return fmt.Errorf("failed to announce %s/%s: %w", t.name, w.key, err)
	}
	return nil
}

// Run loads the table, then applies change notifications and flushes queued
// writes until ctx is cancelled. It returns nil on cancellation.
func (t *RedisTable) Run(ctx context.Context) error {
	if err := t.Load(ctx); err != nil {
		return err
	}
	pubsub := t.client.Subscribe(ctx, t.Key())
	defer pubsub.Close()
	t.log.Infof("subscribed to %s", t.Key())

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("table %s: subscription closed", t.name)
			}
			if err := t.refresh(ctx, msg.Payload); err != nil {
				t.log.Warnf("%v", err)
			}
		case w := <-t.writes:
			if err := t.flush(ctx, w); err != nil {
				t.log.Warnf("%v", err)
			}
		}
	}
}

// EncodeValue renders numbers as a comma-separated list.
func EncodeValue(v []float64) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = strconv.FormatFloat(x, 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}

// DecodeValue parses a comma-separated list of numbers. The empty string is
// an empty array.
func DecodeValue(s string) ([]float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return []float64{}, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", p, err)
		}
		out[i] = v
	}
	return out, nil
}
