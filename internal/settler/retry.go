package settler

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/DIGITAL-FLOW-SOLUTIONS/ODDROYAL-V2-sub002/internal/cache"
	"github.com/DIGITAL-FLOW-SOLUTIONS/ODDROYAL-V2-sub002/pkg/models"
)

// RetryQueue is the durable queue of transiently failed settlements.
// It lives in Redis (ZSET scored by due time, payloads in a hash keyed
// by bet ID) so a worker restart loses nothing and a re-push of the
// same bet replaces its earlier entry instead of duplicating it.
type RetryQueue struct {
	client      *redis.Client
	log         *logrus.Logger
	baseDelay   time.Duration
	maxDelay    time.Duration
	maxAttempts int
}

// NewRetryQueue creates a retry queue with exponential backoff between
// baseDelay and maxDelay, giving up after maxAttempts.
func NewRetryQueue(client *redis.Client, log *logrus.Logger, baseDelay, maxDelay time.Duration, maxAttempts int) *RetryQueue {
	return &RetryQueue{
		client:      client,
		log:         log,
		baseDelay:   baseDelay,
		maxDelay:    maxDelay,
		maxAttempts: maxAttempts,
	}
}

// Push schedules a failed settlement for retry. The delay grows
// exponentially with the attempt count, with up to 50% jitter so a
// burst of failures does not come due as a burst of retries. Returns
// false when the item has exhausted its attempts and was dropped.
func (q *RetryQueue) Push(ctx context.Context, item models.SettlementRetryItem) (bool, error) {
	item.AttemptCount++
	if item.AttemptCount > q.maxAttempts {
		q.log.WithFields(logrus.Fields{
			"bet_id":   item.BetID,
			"attempts": item.AttemptCount - 1,
			"reason":   item.Reason,
		}).Error("giving up on settlement retry")
		return false, q.Remove(ctx, item.BetID)
	}

	delay := q.baseDelay << uint(item.AttemptCount-1)
	if delay > q.maxDelay || delay <= 0 {
		delay = q.maxDelay
	}
	delay += time.Duration(rand.Int63n(int64(delay)/2 + 1))
	item.NextRetryAt = time.Now().Add(delay).UTC()

	payload, err := json.Marshal(item)
	if err != nil {
		return false, fmt.Errorf("marshaling retry item: %w", err)
	}

	member := strconv.FormatInt(item.BetID, 10)
	pipe := q.client.Pipeline()
	pipe.ZAdd(ctx, cache.SettlementRetryKey, redis.Z{
		Score:  float64(item.NextRetryAt.Unix()),
		Member: member,
	})
	pipe.HSet(ctx, cache.SettlementRetryItemsKey, member, payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("pushing retry item: %w", err)
	}

	q.log.WithFields(logrus.Fields{
		"bet_id":  item.BetID,
		"attempt": item.AttemptCount,
		"due_in":  delay.Round(time.Millisecond),
	}).Warn("settlement queued for retry")
	return true, nil
}

// Due returns up to limit items whose retry time has passed, ordered
// by priority (highest first) then due time. Items stay queued until
// Remove; a crash between Due and Remove just means another due read.
func (q *RetryQueue) Due(ctx context.Context, now time.Time, limit int) ([]models.SettlementRetryItem, error) {
	members, err := q.client.ZRangeByScore(ctx, cache.SettlementRetryKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.Unix(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("reading due retries: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	payloads, err := q.client.HMGet(ctx, cache.SettlementRetryItemsKey, members...).Result()
	if err != nil {
		return nil, fmt.Errorf("reading retry payloads: %w", err)
	}

	items := make([]models.SettlementRetryItem, 0, len(payloads))
	for i, raw := range payloads {
		data, ok := raw.(string)
		if !ok {
			// Payload lost; drop the orphaned member.
			q.client.ZRem(ctx, cache.SettlementRetryKey, members[i])
			continue
		}
		var item models.SettlementRetryItem
		if err := json.Unmarshal([]byte(data), &item); err != nil {
			q.log.WithError(err).WithField("member", members[i]).Warn("dropping unreadable retry item")
			_ = q.Remove(ctx, mustParseInt(members[i]))
			continue
		}
		items = append(items, item)
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Priority != items[j].Priority {
			return items[i].Priority > items[j].Priority
		}
		return items[i].NextRetryAt.Before(items[j].NextRetryAt)
	})
	return items, nil
}

// Remove drops a bet's retry entry, typically after a successful
// settlement or a permanent give-up.
func (q *RetryQueue) Remove(ctx context.Context, betID int64) error {
	member := strconv.FormatInt(betID, 10)
	pipe := q.client.Pipeline()
	pipe.ZRem(ctx, cache.SettlementRetryKey, member)
	pipe.HDel(ctx, cache.SettlementRetryItemsKey, member)
	_, err := pipe.Exec(ctx)
	return err
}

// Len returns the number of queued retries.
func (q *RetryQueue) Len(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, cache.SettlementRetryKey).Result()
}

func mustParseInt(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}
