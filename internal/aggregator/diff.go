package aggregator

import (
	"time"

	"github.com/DIGITAL-FLOW-SOLUTIONS/ODDROYAL-V2-sub002/pkg/models"
)

// Diff computes the field-level delta between the last published
// snapshot and the next one. A fixture with no prior snapshot emits a
// single "new" change carrying the full snapshot; otherwise only the
// changed top-level fields are emitted, each with old and new values.
func Diff(prev, next *models.UnifiedMatch, now time.Time) models.MatchDiff {
	diff := models.MatchDiff{
		FixtureID: next.MatchID,
		SportKey:  next.SportKey,
		Timestamp: now,
	}

	if prev == nil {
		diff.Changes = []models.FieldChange{{Path: models.PathNew, Value: next}}
		return diff
	}

	if prev.Status != next.Status {
		diff.Changes = append(diff.Changes, models.FieldChange{
			Path: "status", Value: next.Status, OldValue: prev.Status,
		})
	}
	if prev.MarketStatus != next.MarketStatus {
		diff.Changes = append(diff.Changes, models.FieldChange{
			Path: "market_status", Value: next.MarketStatus, OldValue: prev.MarketStatus,
		})
	}
	if !scoresEqual(prev.Scores, next.Scores) {
		diff.Changes = append(diff.Changes, models.FieldChange{
			Path: "scores", Value: next.Scores, OldValue: prev.Scores,
		})
	}
	if !pricesEqual(prev.Prices, next.Prices) {
		diff.Changes = append(diff.Changes, models.FieldChange{
			Path: "prices", Value: next.Prices, OldValue: prev.Prices,
		})
	}
	if !prev.CommenceTime.Equal(next.CommenceTime) {
		diff.Changes = append(diff.Changes, models.FieldChange{
			Path: "commence_time", Value: next.CommenceTime, OldValue: prev.CommenceTime,
		})
	}

	return diff
}

func scoresEqual(a, b *models.Scores) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func pricesEqual(a, b map[string]float64) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}
