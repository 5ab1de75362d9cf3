package aggregator

import (
	"testing"
	"time"

	"github.com/DIGITAL-FLOW-SOLUTIONS/ODDROYAL-V2-sub002/pkg/models"
)

func baseMatch() *models.UnifiedMatch {
	return &models.UnifiedMatch{
		MatchID:      "m1",
		SportKey:     "soccer_epl",
		HomeTeam:     "Arsenal",
		AwayTeam:     "Spurs",
		CommenceTime: time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC),
		Status:       models.MatchStatusLive,
		Scores:       &models.Scores{Home: 1, Away: 0},
		MarketStatus: models.MarketOpen,
		Prices:       map[string]float64{"home": 1.80, "away": 4.20, "draw": 3.50},
		Source:       models.SourceAPI,
	}
}

func TestDiffNoPriorSnapshotEmitsNew(t *testing.T) {
	next := baseMatch()
	now := time.Now()

	diff := Diff(nil, next, now)

	if diff.FixtureID != "m1" || diff.SportKey != "soccer_epl" {
		t.Errorf("identity = %s/%s, want m1/soccer_epl", diff.FixtureID, diff.SportKey)
	}
	if len(diff.Changes) != 1 {
		t.Fatalf("changes = %d, want single new entry", len(diff.Changes))
	}
	if diff.Changes[0].Path != models.PathNew {
		t.Errorf("path = %q, want %q", diff.Changes[0].Path, models.PathNew)
	}
	if diff.Changes[0].Value != next {
		t.Error("new change must carry the full snapshot")
	}
}

func TestDiffIdenticalSnapshotsIsEmpty(t *testing.T) {
	prev := baseMatch()
	next := baseMatch()

	diff := Diff(prev, next, time.Now())

	if !diff.Empty() {
		t.Errorf("changes = %+v, want none for identical snapshots", diff.Changes)
	}
}

func TestDiffChangedFieldsCarryOldAndNew(t *testing.T) {
	prev := baseMatch()
	next := baseMatch()
	next.Scores = &models.Scores{Home: 2, Away: 0}
	next.Prices = map[string]float64{"home": 1.50, "away": 5.00, "draw": 4.00}
	next.MarketStatus = models.MarketSuspended

	diff := Diff(prev, next, time.Now())

	byPath := make(map[string]models.FieldChange, len(diff.Changes))
	for _, c := range diff.Changes {
		byPath[c.Path] = c
	}

	if len(diff.Changes) != 3 {
		t.Fatalf("changes = %d (%v), want 3", len(diff.Changes), diff.Changes)
	}
	if c, ok := byPath["scores"]; !ok {
		t.Error("missing scores change")
	} else if c.OldValue.(*models.Scores).Home != 1 || c.Value.(*models.Scores).Home != 2 {
		t.Errorf("scores change = %+v, want 1 -> 2", c)
	}
	if _, ok := byPath["prices"]; !ok {
		t.Error("missing prices change")
	}
	if c, ok := byPath["market_status"]; !ok {
		t.Error("missing market_status change")
	} else if c.Value != models.MarketSuspended {
		t.Errorf("market_status new value = %v, want suspended", c.Value)
	}
	if _, ok := byPath["status"]; ok {
		t.Error("status did not change and must not appear")
	}
}

func TestDiffScoresNilTransitions(t *testing.T) {
	prev := baseMatch()
	prev.Scores = nil
	next := baseMatch()

	diff := Diff(prev, next, time.Now())
	if len(diff.Changes) != 1 || diff.Changes[0].Path != "scores" {
		t.Fatalf("changes = %+v, want single scores change", diff.Changes)
	}

	// Same nil on both sides is not a change.
	next.Scores = nil
	diff = Diff(prev, next, time.Now())
	if !diff.Empty() {
		t.Errorf("changes = %+v, want none for nil scores on both sides", diff.Changes)
	}
}

func TestDiffCommenceTimeReschedule(t *testing.T) {
	prev := baseMatch()
	next := baseMatch()
	next.CommenceTime = prev.CommenceTime.Add(45 * time.Minute)

	diff := Diff(prev, next, time.Now())
	if len(diff.Changes) != 1 || diff.Changes[0].Path != "commence_time" {
		t.Fatalf("changes = %+v, want single commence_time change", diff.Changes)
	}
}
