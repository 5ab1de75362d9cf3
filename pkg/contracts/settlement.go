package contracts

import "context"

// SelectionUpdate is the resolved state of one selection inside an
// atomic settlement request.
type SelectionUpdate struct {
	SelectionID int64  `json:"selection_id"`
	Status      string `json:"status"`
	Result      string `json:"result"`
}

// SettlementRequest carries everything needed to move a bet from
// pending to a terminal state in one transaction.
type SettlementRequest struct {
	BetID          int64             `json:"bet_id"`
	UserID         int64             `json:"user_id"`
	FinalStatus    string            `json:"final_status"`
	ActualWinnings float64           `json:"actual_winnings"`
	Selections     []SelectionUpdate `json:"selections"`
	WorkerID       string            `json:"worker_id"`
}

// AtomicSettler applies a settlement request as a single all-or-nothing
// unit: bet status, selection statuses and the balance credit commit
// together or not at all.
type AtomicSettler interface {
	SettleAtomically(ctx context.Context, req SettlementRequest) error
}
