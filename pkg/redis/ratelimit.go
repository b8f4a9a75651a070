package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/theBullfish/replier-web/pkg/ratelimiter"
)

// tokenBucketScript keeps {tokens, refilled_at_ms} in a hash and mirrors
// ratelimiter.MemoryStore: refill whole intervals, deny without consuming.
var tokenBucketScript = redis.NewScript(`
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local interval = tonumber(ARGV[3])
local now = tonumber(ARGV[4])
local want = tonumber(ARGV[5])

local state = redis.call('HMGET', KEYS[1], 'tokens', 'refilled')
local tokens = tonumber(state[1])
local refilled = tonumber(state[2])
if tokens == nil then
	tokens = capacity
	refilled = now
end

local intervals = math.min(math.floor((now - refilled) / interval), math.floor(capacity / rate) + 1)
if intervals > 0 then
	tokens = math.min(tokens + intervals * rate, capacity)
	refilled = refilled + intervals * interval
	if tokens == capacity then
		refilled = now
	end
end

local remaining = tokens - want
if remaining >= 0 then
	tokens = remaining
end

redis.call('HSET', KEYS[1], 'tokens', tokens, 'refilled', refilled)
redis.call('PEXPIRE', KEYS[1], interval * (math.floor(capacity / rate) + 2))
return {remaining, refilled + interval}
`)

// RateLimitStore is a ratelimiter.Store shared by every instance of the
// service.
type RateLimitStore struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewRateLimitStore(client redis.UniversalClient, prefix string) *RateLimitStore {
	return &RateLimitStore{client: client, prefix: prefix, now: time.Now}
}

func (s *RateLimitStore) ConsumeTokens(ctx context.Context, key string, tokens int, cfg ratelimiter.Config) (int, time.Time, error) {
	res, err := tokenBucketScript.Run(ctx, s.client, []string{s.prefix + key},
		cfg.Capacity, cfg.RefillRate, cfg.RefillInterval.Milliseconds(), s.now().UnixMilli(), tokens,
	).Int64Slice()
	if err != nil {
		return 0, time.Time{}, errors.Join(ErrRateLimitExecution, err)
	}
	if len(res) != 2 {
		return 0, time.Time{}, ErrUnexpectedReply
	}
	return int(res[0]), time.UnixMilli(res[1]), nil
}

func (s *RateLimitStore) Reset(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+key).Err()
}
