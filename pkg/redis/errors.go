package redis

import "errors"

var (
	ErrEmptyConnectionURL           = errors.New("empty redis connection URL")
	ErrFailedToParseRedisConnString = errors.New("failed to parse redis connection string")
	ErrRedisNotReady                = errors.New("redis did not become ready within the given time period")
	ErrHealthcheckFailed            = errors.New("redis healthcheck failed")

	ErrDedupeLookup       = errors.New("redis: webhook dedupe lookup failed")
	ErrDedupeMark         = errors.New("redis: webhook dedupe mark failed")
	ErrUnexpectedReply    = errors.New("redis: unexpected rate limit script reply")
	ErrRateLimitExecution = errors.New("redis: rate limit script failed")
)
