package cache

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned by Get when the key is absent.
var ErrMiss = errors.New("cache miss")

// RedisCache holds encoded account records keyed by account id. It is shared
// by every server process pointed at the same Redis, like the ledger files.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache connects to the Redis server at addr. Entries expire after ttl.
func NewRedisCache(addr string, ttl time.Duration) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     "",
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	return NewRedisCacheWithClient(client, ttl)
}

// NewRedisCacheWithClient uses an existing client.
func NewRedisCacheWithClient(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

// Ping checks that the server answers.
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}

// GetRecord returns the cached record of the account or ErrMiss.
func (r *RedisCache) GetRecord(ctx context.Context, accountID int64) ([]byte, error) {
	data, err := r.client.Get(ctx, AccountRecordKey(accountID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	return data, err
}

// SetRecord stores record for the account with the cache TTL.
func (r *RedisCache) SetRecord(ctx context.Context, accountID int64, record []byte) error {
	return r.client.Set(ctx, AccountRecordKey(accountID), record, r.ttl).Err()
}

// Invalidate drops the entries of the given accounts.
func (r *RedisCache) Invalidate(ctx context.Context, accountIDs ...int64) error {
	if len(accountIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(accountIDs))
	for _, id := range accountIDs {
		keys = append(keys, AccountRecordKey(id))
	}
	return r.client.Del(ctx, keys...).Err()
}

// AccountRecordKey is the Redis key of the record of accountID.
func AccountRecordKey(accountID int64) string {
	return "ledger:account:" + strconv.FormatInt(accountID, 10)
}
