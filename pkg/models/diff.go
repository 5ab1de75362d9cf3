package models

import "time"

// PathNew is the change path emitted for a fixture that has no
// previously published snapshot.
const PathNew = "new"

// FieldChange describes a single changed field of a fixture snapshot,
// carrying both the old and new values so subscribers can apply or
// display the transition.
type FieldChange struct {
	Path     string      `json:"path"`
	Value    interface{} `json:"value"`
	OldValue interface{} `json:"old_value,omitempty"`
}

// MatchDiff is the delta between two consecutive snapshots of one
// fixture. Diffs are produced, published and discarded; they are never
// stored.
type MatchDiff struct {
	FixtureID string        `json:"fixture_id"`
	SportKey  string        `json:"sport_key"`
	Changes   []FieldChange `json:"changes"`
	Timestamp time.Time     `json:"timestamp"`
}

// Empty reports whether the diff carries no changes.
func (d MatchDiff) Empty() bool {
	return len(d.Changes) == 0
}
