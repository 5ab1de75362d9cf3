package contracts

import (
	"context"
	"time"
)

// FetchOptions narrows an odds request to the regions, markets and
// format the caller needs.
type FetchOptions struct {
	Regions    string
	Markets    string
	OddsFormat string
	// Status optionally restricts results to "live" or "upcoming".
	Status string
}

// Outcome is one priced outcome within a market.
type Outcome struct {
	Name  string   `json:"name"`
	Price float64  `json:"price"`
	Point *float64 `json:"point,omitempty"`
}

// MarketOdds is a market with its current outcomes.
type MarketOdds struct {
	Key      string    `json:"key"`
	Outcomes []Outcome `json:"outcomes"`
}

// Bookmaker groups the markets quoted by a single book.
type Bookmaker struct {
	Key        string       `json:"key"`
	LastUpdate time.Time    `json:"last_update"`
	Markets    []MarketOdds `json:"markets"`
}

// Event is an upstream fixture with its current odds.
type Event struct {
	ID           string      `json:"id"`
	SportKey     string      `json:"sport_key"`
	LeagueKey    string      `json:"league_key,omitempty"`
	HomeTeam     string      `json:"home_team"`
	AwayTeam     string      `json:"away_team"`
	CommenceTime time.Time   `json:"commence_time"`
	Bookmakers   []Bookmaker `json:"bookmakers,omitempty"`
}

// TeamScore is a single team's score as reported upstream.
type TeamScore struct {
	Name  string `json:"name"`
	Score string `json:"score"`
}

// ScoreEvent is an upstream fixture result.
type ScoreEvent struct {
	ID           string      `json:"id"`
	SportKey     string      `json:"sport_key"`
	HomeTeam     string      `json:"home_team"`
	AwayTeam     string      `json:"away_team"`
	CommenceTime time.Time   `json:"commence_time"`
	Completed    bool        `json:"completed"`
	Scores       []TeamScore `json:"scores,omitempty"`
	LastUpdate   time.Time   `json:"last_update"`
}

// OddsProvider is the upstream odds feed. The engine consumes it as a
// collaborator; retry and rate limiting live behind this interface,
// not in front of it.
type OddsProvider interface {
	FetchOdds(ctx context.Context, sportKey string, opts FetchOptions) ([]Event, error)
	FetchScores(ctx context.Context, sportKey string, daysFrom int) ([]ScoreEvent, error)
}
