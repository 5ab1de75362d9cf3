package models

import "time"

// MatchStatus is the lifecycle phase of a fixture.
type MatchStatus string

const (
	MatchStatusLive      MatchStatus = "live"
	MatchStatusUpcoming  MatchStatus = "upcoming"
	MatchStatusCompleted MatchStatus = "completed"
)

// MarketStatus reflects whether a fixture's markets accept bets.
type MarketStatus string

const (
	MarketOpen      MarketStatus = "open"
	MarketSuspended MarketStatus = "suspended"
	MarketClosed    MarketStatus = "closed"
)

// MatchSource identifies who produced a fixture snapshot.
type MatchSource string

const (
	SourceAPI    MatchSource = "api"
	SourceManual MatchSource = "manual"
)

// Scores holds the current score of a fixture.
type Scores struct {
	Home int `json:"home"`
	Away int `json:"away"`
}

// UnifiedMatch is the canonical fixture snapshot shared by every
// consumer. The aggregator diffs consecutive snapshots of it and the
// settlement engine reads final results from it.
type UnifiedMatch struct {
	MatchID      string             `json:"match_id"`
	SportKey     string             `json:"sport_key"`
	LeagueID     string             `json:"league_id"`
	HomeTeam     string             `json:"home_team"`
	AwayTeam     string             `json:"away_team"`
	CommenceTime time.Time          `json:"commence_time"`
	Status       MatchStatus        `json:"status"`
	Scores       *Scores            `json:"scores,omitempty"`
	MarketStatus MarketStatus       `json:"market_status"`
	Prices       map[string]float64 `json:"prices,omitempty"`
	Source       MatchSource        `json:"source"`
}

// HasResult reports whether the fixture carries a final, settleable
// result.
func (m *UnifiedMatch) HasResult() bool {
	return m != nil && m.Status == MatchStatusCompleted && m.Scores != nil
}
