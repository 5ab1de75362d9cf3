package models

import "time"

// BetType identifies how a bet's selections combine into a payout.
type BetType string

const (
	BetTypeSingle  BetType = "single"
	BetTypeExpress BetType = "express"
	BetTypeSystem  BetType = "system"
)

// BetStatus is the lifecycle state of a bet. Every status except
// pending is terminal; a settled bet is never mutated again.
type BetStatus string

const (
	BetStatusPending   BetStatus = "pending"
	BetStatusWon       BetStatus = "won"
	BetStatusLost      BetStatus = "lost"
	BetStatusCashout   BetStatus = "cashout"
	BetStatusCancelled BetStatus = "cancelled"
)

// IsTerminal reports whether the status permits no further transitions.
func (s BetStatus) IsTerminal() bool {
	return s != BetStatusPending
}

// SelectionStatus is the resolved state of a single selection.
type SelectionStatus string

const (
	SelectionPending SelectionStatus = "pending"
	SelectionWon     SelectionStatus = "won"
	SelectionLost    SelectionStatus = "lost"
	SelectionVoid    SelectionStatus = "void"
)

// Bet is a placed wager. Bets are created by the placement flow and
// mutated only by the settlement engine.
type Bet struct {
	ID                int64      `json:"id"`
	UserID            int64      `json:"user_id"`
	Type              BetType    `json:"type"`
	TotalStake        float64    `json:"total_stake"`
	PotentialWinnings float64    `json:"potential_winnings"`
	Status            BetStatus  `json:"status"`
	PlacedAt          time.Time  `json:"placed_at"`
	SettledAt         *time.Time `json:"settled_at,omitempty"`
	ActualWinnings    float64    `json:"actual_winnings"`
}

// BetSelection is one leg of a bet. All selections of a bet are
// evaluated together; they are never committed independently.
type BetSelection struct {
	ID           int64           `json:"id"`
	BetID        int64           `json:"bet_id"`
	FixtureID    string          `json:"fixture_id"`
	Market       string          `json:"market"`
	SelectionKey string          `json:"selection_key"`
	Odds         float64         `json:"odds"`
	Status       SelectionStatus `json:"status"`
	Result       string          `json:"result"`
}

// SettlementRetryItem is the persisted shape of a settlement attempt
// that failed transiently and should be retried later.
type SettlementRetryItem struct {
	BetID        int64     `json:"bet_id"`
	UserID       int64     `json:"user_id"`
	Reason       string    `json:"reason"`
	Priority     int       `json:"priority"`
	AttemptCount int       `json:"attempt_count"`
	NextRetryAt  time.Time `json:"next_retry_at"`
}
