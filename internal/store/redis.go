package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const defaultRedisPrefix = "dictado"

// bindLicenseScript performs the check-and-bind of a license key atomically.
// Returns 1 for a new binding, 0 when already bound to the same identity and
// -1 when bound to another identity.
var bindLicenseScript = redis.NewScript(`
local owner = redis.call('HGET', KEYS[1], ARGV[1])
if owner then
  if owner == ARGV[2] then
    return 0
  end
  return -1
end
local previous = redis.call('HGET', KEYS[2], 'licenseKey')
if previous and previous ~= ARGV[1] and redis.call('HGET', KEYS[1], previous) == ARGV[2] then
  redis.call('HDEL', KEYS[1], previous)
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
redis.call('HSET', KEYS[2], 'licenseKey', ARGV[1], 'isPro', '1')
return 1
`)

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// RedisStore keeps one usage hash per identity, so increments for different
// identities never contend. Durability follows the Redis server's
// persistence settings.
type RedisStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

func OpenRedis(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", opts.Addr, err)
	}

	prefix := opts.Prefix
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix, now: time.Now}, nil
}

func (s *RedisStore) Touch(ctx context.Context, identity string) error {
	if err := s.client.HSetNX(ctx, s.userKey(identity), "createdAt", s.now().UTC().Format(time.RFC3339)).Err(); err != nil {
		return fmt.Errorf("touch identity: %w", err)
	}
	return nil
}

func (s *RedisStore) AddUsage(ctx context.Context, identity, day string, minutes decimal.Decimal) (decimal.Decimal, error) {
	// HIncrByFloat only takes a float64; the decimal string keeps the
	// increment exact on the wire.
	total, err := s.client.Do(ctx, "HINCRBYFLOAT", s.usageKey(identity), day, minutes.String()).Text()
	if err != nil {
		return decimal.Zero, fmt.Errorf("add usage: %w", err)
	}
	sum, err := decimal.NewFromString(total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse usage %q: %w", total, err)
	}
	return sum, nil
}

func (s *RedisStore) Usage(ctx context.Context, identity, day string) (decimal.Decimal, error) {
	value, err := s.client.HGet(ctx, s.usageKey(identity), day).Result()
	if errors.Is(err, redis.Nil) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("read usage: %w", err)
	}

	minutes, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse usage %q: %w", value, err)
	}
	return minutes, nil
}

func (s *RedisStore) BindLicense(ctx context.Context, identity, key string) (bool, error) {
	result, err := bindLicenseScript.Run(ctx, s.client, []string{s.licensesKey(), s.userKey(identity)}, key, identity).Int()
	if err != nil {
		return false, fmt.Errorf("bind license: %w", err)
	}

	switch result {
	case 1:
		return true, nil
	case 0:
		return false, nil
	default:
		return false, ErrAlreadyBound
	}
}

func (s *RedisStore) LicenseFor(ctx context.Context, identity string) (string, error) {
	key, err := s.client.HGet(ctx, s.userKey(identity), "licenseKey").Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read license: %w", err)
	}
	return key, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) userKey(identity string) string {
	return s.prefix + ":user:" + identity
}

func (s *RedisStore) usageKey(identity string) string {
	return s.prefix + ":usage:" + identity
}

func (s *RedisStore) licensesKey() string {
	return s.prefix + ":licenses"
}
