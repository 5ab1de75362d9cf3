package settler

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/DIGITAL-FLOW-SOLUTIONS/ODDROYAL-V2-sub002/pkg/contracts"
	"github.com/DIGITAL-FLOW-SOLUTIONS/ODDROYAL-V2-sub002/pkg/models"
)

// PostgresStore persists bets, selections and user balances. Its
// SettleAtomically is the engine's transaction boundary: everything a
// settlement changes commits in one database transaction or not at
// all.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an open database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// ListPendingBets returns up to limit pending bets, oldest first.
func (s *PostgresStore) ListPendingBets(ctx context.Context, limit int) ([]models.Bet, error) {
	query := `
		SELECT id, user_id, type, total_stake, potential_winnings, status, placed_at
		FROM bets
		WHERE status = 'pending'
		ORDER BY placed_at
		LIMIT $1
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending bets: %w", err)
	}
	defer rows.Close()

	var bets []models.Bet
	for rows.Next() {
		var bet models.Bet
		if err := rows.Scan(&bet.ID, &bet.UserID, &bet.Type, &bet.TotalStake,
			&bet.PotentialWinnings, &bet.Status, &bet.PlacedAt); err != nil {
			return nil, fmt.Errorf("scan bet: %w", err)
		}
		bets = append(bets, bet)
	}
	return bets, rows.Err()
}

// GetBet loads a single bet by ID. Returns (nil, nil) when the bet
// does not exist.
func (s *PostgresStore) GetBet(ctx context.Context, betID int64) (*models.Bet, error) {
	var bet models.Bet
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, type, total_stake, potential_winnings, status, placed_at
		FROM bets
		WHERE id = $1
	`, betID).Scan(&bet.ID, &bet.UserID, &bet.Type, &bet.TotalStake,
		&bet.PotentialWinnings, &bet.Status, &bet.PlacedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read bet %d: %w", betID, err)
	}
	return &bet, nil
}

// GetBetStatus re-reads a bet's persisted status. Used as the
// idempotency check after the settlement lock is taken.
func (s *PostgresStore) GetBetStatus(ctx context.Context, betID int64) (models.BetStatus, error) {
	var status models.BetStatus
	err := s.db.QueryRowContext(ctx,
		`SELECT status FROM bets WHERE id = $1`, betID).Scan(&status)
	if err != nil {
		return "", fmt.Errorf("read bet %d status: %w", betID, err)
	}
	return status, nil
}

// GetSelections loads all selections of a bet.
func (s *PostgresStore) GetSelections(ctx context.Context, betID int64) ([]models.BetSelection, error) {
	query := `
		SELECT id, bet_id, fixture_id, market, selection_key, odds, status, result
		FROM bet_selections
		WHERE bet_id = $1
		ORDER BY id
	`

	rows, err := s.db.QueryContext(ctx, query, betID)
	if err != nil {
		return nil, fmt.Errorf("query selections for bet %d: %w", betID, err)
	}
	defer rows.Close()

	var selections []models.BetSelection
	for rows.Next() {
		var sel models.BetSelection
		if err := rows.Scan(&sel.ID, &sel.BetID, &sel.FixtureID, &sel.Market,
			&sel.SelectionKey, &sel.Odds, &sel.Status, &sel.Result); err != nil {
			return nil, fmt.Errorf("scan selection: %w", err)
		}
		selections = append(selections, sel)
	}
	return selections, rows.Err()
}

// SettleAtomically applies a full settlement in one transaction: the
// bet transition (guarded on status = pending so a racing worker gets
// ErrAlreadySettled instead of a double write), every selection update
// and the balance credit. Partial application is impossible: any
// failure rolls the whole transaction back.
func (s *PostgresStore) SettleAtomically(ctx context.Context, req contracts.SettlementRequest) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin settlement tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE bets
		SET status = $1, actual_winnings = $2, settled_at = NOW()
		WHERE id = $3 AND status = 'pending'
	`, req.FinalStatus, req.ActualWinnings, req.BetID)
	if err != nil {
		return fmt.Errorf("update bet %d: %w", req.BetID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update bet %d: %w", req.BetID, err)
	}
	if affected == 0 {
		return ErrAlreadySettled
	}

	for _, sel := range req.Selections {
		if _, err := tx.ExecContext(ctx, `
			UPDATE bet_selections
			SET status = $1, result = $2
			WHERE id = $3 AND bet_id = $4
		`, sel.Status, sel.Result, sel.SelectionID, req.BetID); err != nil {
			return fmt.Errorf("update selection %d: %w", sel.SelectionID, err)
		}
	}

	if req.ActualWinnings > 0 {
		if _, err := tx.ExecContext(ctx, `
			UPDATE users
			SET balance = balance + $1
			WHERE id = $2
		`, req.ActualWinnings, req.UserID); err != nil {
			return fmt.Errorf("credit user %d: %w", req.UserID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO settlement_log (bet_id, user_id, final_status, actual_winnings, worker_id)
		VALUES ($1, $2, $3, $4, $5)
	`, req.BetID, req.UserID, req.FinalStatus, req.ActualWinnings, req.WorkerID); err != nil {
		return fmt.Errorf("log settlement for bet %d: %w", req.BetID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit settlement for bet %d: %w", req.BetID, err)
	}
	return nil
}
