package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// releaseIfOwnedScript deletes the lock key only when it still holds
// the caller's token. Compare and delete must happen server-side; a
// GET/DEL pair would let a worker free a lock that expired and was
// re-acquired by someone else in between.
var releaseIfOwnedScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

// AcquireLock atomically takes the lock key with an expiry (SET NX EX).
// Returns false when another owner currently holds it. The TTL doubles
// as the crash-recovery mechanism: a dead holder simply lets the lock
// expire.
func (s *Store) AcquireLock(ctx context.Context, key, ownerToken string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, ownerToken, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquiring lock %s: %w", key, err)
	}
	return ok, nil
}

// ReleaseLock frees the lock only if ownerToken still matches the
// stored value. Returns false (and leaves the lock intact) when the
// caller no longer owns it.
func (s *Store) ReleaseLock(ctx context.Context, key, ownerToken string) (bool, error) {
	n, err := releaseIfOwnedScript.Run(ctx, s.client, []string{key}, ownerToken).Int()
	if err != nil {
		return false, fmt.Errorf("releasing lock %s: %w", key, err)
	}
	return n == 1, nil
}
