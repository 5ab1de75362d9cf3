// Package cache implements the shared versioned cache store on Redis.
//
// Every entry is a JSON envelope of payload plus metadata (source,
// recorded TTL, emptiness flags), so consumers can tell a legitimate
// empty result from a failed fetch and can measure staleness against
// the TTL the writer intended, not the one Redis happens to have left.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// DefaultStaleFraction is the remaining-TTL fraction below which an
// entry counts as stale.
const DefaultStaleFraction = 0.2

// Metadata travels with every cache entry.
type Metadata struct {
	LastUpdated       time.Time `json:"last_updated"`
	TTLSeconds        int       `json:"ttl_seconds"`
	Source            string    `json:"source"`
	IsEmpty           bool      `json:"is_empty"`
	IsLegitimateEmpty bool      `json:"is_legitimate_empty"`
}

// Entry is the stored envelope: opaque payload plus metadata.
type Entry struct {
	Payload json.RawMessage `json:"payload"`
	Meta    Metadata        `json:"meta"`
}

// RemainingTTL returns how much of the recorded TTL is left at now.
func (e *Entry) RemainingTTL(now time.Time) time.Duration {
	expiry := e.Meta.LastUpdated.Add(time.Duration(e.Meta.TTLSeconds) * time.Second)
	if remaining := expiry.Sub(now); remaining > 0 {
		return remaining
	}
	return 0
}

// IsStale reports whether less than DefaultStaleFraction of the
// recorded TTL remains.
func (e *Entry) IsStale(now time.Time) bool {
	total := time.Duration(e.Meta.TTLSeconds) * time.Second
	if total <= 0 {
		return true
	}
	return float64(e.RemainingTTL(now)) < DefaultStaleFraction*float64(total)
}

// Store is the process-wide cache handle. It is passed by reference to
// every worker; there is no package-level instance.
type Store struct {
	client *redis.Client
	log    *logrus.Logger
}

// NewStore creates a Store on an existing Redis client.
func NewStore(client *redis.Client, log *logrus.Logger) *Store {
	return &Store{client: client, log: log}
}

// Client exposes the underlying Redis client for collaborators that
// need primitives beyond the entry envelope (retry queue, streams).
func (s *Store) Client() *redis.Client {
	return s.client
}

// Ping verifies the Redis connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Set writes value unconditionally under key with the given TTL.
// LastUpdated and TTLSeconds are stamped here; callers only provide
// Source and the emptiness flags.
func (s *Store) Set(ctx context.Context, key string, value interface{}, ttl time.Duration, meta Metadata) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshaling payload for %s: %w", key, err)
	}

	meta.LastUpdated = time.Now().UTC()
	meta.TTLSeconds = int(ttl / time.Second)

	envelope, err := json.Marshal(Entry{Payload: payload, Meta: meta})
	if err != nil {
		return fmt.Errorf("marshaling entry for %s: %w", key, err)
	}

	return s.client.Set(ctx, key, envelope, ttl).Err()
}

// MergeSet writes value under key unless doing so would silently blank
// a healthy entry: when count is zero, the existing entry is non-empty
// and the caller has not marked the emptiness as legitimate, the write
// is rejected and the existing value is kept (stale-while-revalidate).
// Returns true when the write went through.
func (s *Store) MergeSet(ctx context.Context, key string, value interface{}, count int, ttl time.Duration, meta Metadata) (bool, error) {
	meta.IsEmpty = count == 0

	if meta.IsEmpty && !meta.IsLegitimateEmpty {
		existing, err := s.GetEntry(ctx, key)
		if err != nil {
			return false, err
		}
		if existing != nil && !existing.Meta.IsEmpty {
			s.log.WithFields(logrus.Fields{
				"key":    key,
				"source": meta.Source,
			}).Warn("rejecting empty write over non-empty cache entry")
			return false, nil
		}
	}

	if err := s.Set(ctx, key, value, ttl, meta); err != nil {
		return false, err
	}
	return true, nil
}

// GetEntry fetches the raw envelope. A missing or expired key returns
// (nil, nil); absence is never an error.
func (s *Store) GetEntry(ctx context.Context, key string) (*Entry, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("unmarshaling entry %s: %w", key, err)
	}
	return &entry, nil
}

// Get unmarshals the payload of key into dest and returns the entry
// metadata. A missing key returns (nil, nil) and leaves dest untouched.
func (s *Store) Get(ctx context.Context, key string, dest interface{}) (*Metadata, error) {
	entry, err := s.GetEntry(ctx, key)
	if err != nil || entry == nil {
		return nil, err
	}
	if err := json.Unmarshal(entry.Payload, dest); err != nil {
		return nil, fmt.Errorf("unmarshaling payload %s: %w", key, err)
	}
	meta := entry.Meta
	return &meta, nil
}

// NeedsRefresh reports whether key is absent or its remaining TTL has
// dropped below threshold times the entry's recorded TTL. expectedTTL
// is the fallback when the entry carries no recorded TTL.
func (s *Store) NeedsRefresh(ctx context.Context, key string, threshold float64, expectedTTL time.Duration) (bool, error) {
	remaining, err := s.client.PTTL(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("pttl %s: %w", key, err)
	}
	// go-redis passes the sentinel replies through unscaled:
	// -2 means the key is absent, -1 means no expiry is set.
	if remaining == -2 {
		return true, nil
	}
	if remaining == -1 {
		return false, nil
	}

	total := expectedTTL
	if entry, err := s.GetEntry(ctx, key); err == nil && entry != nil && entry.Meta.TTLSeconds > 0 {
		total = time.Duration(entry.Meta.TTLSeconds) * time.Second
	}
	if total <= 0 {
		return true, nil
	}
	return float64(remaining) < threshold*float64(total), nil
}

// ExtendTTLIfLow re-arms the key's TTL to target when less than
// threshold of target remains, without rewriting the payload. Used to
// keep serving stale data while the upstream is failing. Returns true
// when the TTL was extended.
func (s *Store) ExtendTTLIfLow(ctx context.Context, key string, target time.Duration, threshold float64) (bool, error) {
	remaining, err := s.client.PTTL(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("pttl %s: %w", key, err)
	}
	if remaining < 0 {
		// Absent key or no expiry: nothing to extend.
		return false, nil
	}
	if float64(remaining) >= threshold*float64(target) {
		return false, nil
	}

	ok, err := s.client.Expire(ctx, key, target).Result()
	if err != nil {
		return false, fmt.Errorf("expire %s: %w", key, err)
	}
	if ok {
		s.log.WithFields(logrus.Fields{
			"key":    key,
			"target": target,
		}).Info("extended TTL on stale entry")
	}
	return ok, nil
}
