// Package zapstore persists Nostr zap requests for later correlation by
// payment hash. Storage is ephemeral and best effort: notes expire on a
// fixed TTL and are never updated or explicitly deleted.
package zapstore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "nostrInvoice:"

// NoteTTL is how long a stored zap request stays retrievable.
const NoteTTL = 1440 * time.Second

// Store saves raw zap request payloads keyed by the payment hash of the
// invoice they were bound to.
type Store interface {
	Save(ctx context.Context, paymentHash, raw string) error
}

// RedisStore is the production Store backed by a shared redis client. The
// client is safe for concurrent use; writes are key-independent with no
// read-modify-write races.
type RedisStore struct {
	client *redis.Client
}

// NewRedis creates a redis-backed zap note store.
func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Save writes the raw zap request under nostrInvoice:<paymentHash> with the
// fixed TTL.
func (s *RedisStore) Save(ctx context.Context, paymentHash, raw string) error {
	return s.client.Set(ctx, keyPrefix+paymentHash, raw, NoteTTL).Err()
}

// Get looks up a previously stored zap request. Absent or expired keys
// return ok=false. The negotiator never reads notes back; this exists for
// the payment-settlement consumer and for tests.
func (s *RedisStore) Get(ctx context.Context, paymentHash string) (string, bool, error) {
	raw, err := s.client.Get(ctx, keyPrefix+paymentHash).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return raw, true, nil
}
