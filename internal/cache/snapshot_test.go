package cache

import (
	"context"
	"testing"
)

func TestRecordOddsSnapshotMovements(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	// First write has nothing to compare against.
	movements, err := store.RecordOddsSnapshot(ctx, "match-1", "h2h", map[string]float64{
		"home": 1.80,
		"away": 4.20,
		"draw": 3.50,
	})
	if err != nil {
		t.Fatalf("first snapshot: %v", err)
	}
	for outcome, m := range movements {
		if m != MovementUnchanged {
			t.Errorf("first snapshot %s = %s, want unchanged", outcome, m)
		}
	}

	movements, err = store.RecordOddsSnapshot(ctx, "match-1", "h2h", map[string]float64{
		"home": 1.90, // drifted up
		"away": 4.00, // drifted down
		"draw": 3.50,
	})
	if err != nil {
		t.Fatalf("second snapshot: %v", err)
	}

	want := map[string]Movement{
		"home": MovementUp,
		"away": MovementDown,
		"draw": MovementUnchanged,
	}
	for outcome, m := range want {
		if movements[outcome] != m {
			t.Errorf("%s = %s, want %s", outcome, movements[outcome], m)
		}
	}
}

func TestRecordOddsSnapshotLockedPrice(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := store.RecordOddsSnapshot(ctx, "match-1", "h2h", map[string]float64{"home": 1.80}); err != nil {
		t.Fatalf("seed snapshot: %v", err)
	}

	movements, err := store.RecordOddsSnapshot(ctx, "match-1", "h2h", map[string]float64{"home": 0})
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if movements["home"] != MovementLocked {
		t.Errorf("zero price = %s, want locked", movements["home"])
	}
}

func TestRecordOddsSnapshotNewOutcome(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := store.RecordOddsSnapshot(ctx, "match-1", "totals_2_5", map[string]float64{"over": 1.95}); err != nil {
		t.Fatalf("seed snapshot: %v", err)
	}

	movements, err := store.RecordOddsSnapshot(ctx, "match-1", "totals_2_5", map[string]float64{
		"over":  2.00,
		"under": 1.85,
	})
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if movements["over"] != MovementUp {
		t.Errorf("over = %s, want up", movements["over"])
	}
	if movements["under"] != MovementUnchanged {
		t.Errorf("outcome absent from previous snapshot = %s, want unchanged", movements["under"])
	}
}
