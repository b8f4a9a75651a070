package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduplicator records processed webhook deliveries so provider retries of
// an already-applied event are acknowledged without touching the database.
type Deduplicator struct {
	client redis.UniversalClient
	prefix string
}

// NewDeduplicator stores markers under prefix (for example "webhook:").
func NewDeduplicator(client redis.UniversalClient, prefix string) *Deduplicator {
	return &Deduplicator{client: client, prefix: prefix}
}

// Seen reports whether key was marked and has not expired.
func (d *Deduplicator) Seen(ctx context.Context, key string) (bool, error) {
	n, err := d.client.Exists(ctx, d.prefix+key).Result()
	if err != nil {
		return false, errors.Join(ErrDedupeLookup, err)
	}
	return n > 0, nil
}

// Mark records key for ttl. Marking an existing key keeps the original
// expiry.
func (d *Deduplicator) Mark(ctx context.Context, key string, ttl time.Duration) error {
	err := d.client.SetNX(ctx, d.prefix+key, time.Now().Unix(), ttl).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return errors.Join(ErrDedupeMark, err)
	}
	return nil
}
