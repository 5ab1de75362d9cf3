package cache

import (
	"context"
	"fmt"
	"time"
)

// Movement classifies how an outcome's price moved between two
// consecutive snapshots.
type Movement string

const (
	MovementUp        Movement = "up"
	MovementDown      Movement = "down"
	MovementUnchanged Movement = "unchanged"
	// MovementLocked marks a price at or below zero, meaning the
	// market is effectively suspended for that outcome.
	MovementLocked Movement = "locked"
)

// OddsSnapshot is the last recorded price set for one market of one
// fixture. Single writer per key; last write wins. It exists only to
// classify the next write's delta.
type OddsSnapshot struct {
	MatchID   string             `json:"match_id"`
	MarketKey string             `json:"market_key"`
	Prices    map[string]float64 `json:"prices"`
	Timestamp time.Time          `json:"timestamp"`
}

// snapshotTTL keeps snapshots around long past any realistic polling
// gap without accumulating dead fixtures forever.
const snapshotTTL = 24 * time.Hour

// RecordOddsSnapshot compares prices against the previously stored
// snapshot, classifies each outcome's movement, then overwrites the
// snapshot. Outcomes absent from the previous snapshot report
// unchanged; prices at or below zero report locked regardless of the
// previous value.
func (s *Store) RecordOddsSnapshot(ctx context.Context, matchID, marketKey string, prices map[string]float64) (map[string]Movement, error) {
	key := OddsSnapshotKey(matchID, marketKey)

	var prev OddsSnapshot
	meta, err := s.Get(ctx, key, &prev)
	if err != nil {
		return nil, fmt.Errorf("reading odds snapshot: %w", err)
	}

	movements := make(map[string]Movement, len(prices))
	for outcome, price := range prices {
		switch {
		case price <= 0:
			movements[outcome] = MovementLocked
		case meta == nil:
			movements[outcome] = MovementUnchanged
		default:
			old, seen := prev.Prices[outcome]
			switch {
			case !seen || price == old:
				movements[outcome] = MovementUnchanged
			case price > old:
				movements[outcome] = MovementUp
			default:
				movements[outcome] = MovementDown
			}
		}
	}

	next := OddsSnapshot{
		MatchID:   matchID,
		MarketKey: marketKey,
		Prices:    prices,
		Timestamp: time.Now().UTC(),
	}
	if err := s.Set(ctx, key, next, snapshotTTL, Metadata{Source: "snapshot"}); err != nil {
		return nil, fmt.Errorf("writing odds snapshot: %w", err)
	}

	return movements, nil
}
