// Package settler drives pending bets to terminal states exactly once,
// no matter how many worker instances run the same loop concurrently.
// Coordination happens only through the shared cache's lock primitive
// and the persisted bet status; workers share no in-process state.
package settler

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/DIGITAL-FLOW-SOLUTIONS/ODDROYAL-V2-sub002/internal/cache"
	"github.com/DIGITAL-FLOW-SOLUTIONS/ODDROYAL-V2-sub002/pkg/contracts"
	"github.com/DIGITAL-FLOW-SOLUTIONS/ODDROYAL-V2-sub002/pkg/models"
)

// BetStore is the persistence surface the engine settles against.
type BetStore interface {
	ListPendingBets(ctx context.Context, limit int) ([]models.Bet, error)
	GetBet(ctx context.Context, betID int64) (*models.Bet, error)
	GetBetStatus(ctx context.Context, betID int64) (models.BetStatus, error)
	GetSelections(ctx context.Context, betID int64) ([]models.BetSelection, error)
	contracts.AtomicSettler
}

// Locker is the distributed lock surface of the cache store.
type Locker interface {
	AcquireLock(ctx context.Context, key, ownerToken string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, ownerToken string) (bool, error)
}

// ResultResolver looks up the final result for a fixture. A nil match
// or one without a result means "not resolvable yet", never an error.
type ResultResolver interface {
	Resolve(ctx context.Context, fixtureID string) (*models.UnifiedMatch, error)
}

// Config tunes one engine instance.
type Config struct {
	PollInterval time.Duration
	LockTTL      time.Duration
	BatchLimit   int
	VoidPolicy   VoidPolicy
	WorkerID     string
}

// Stats are cumulative counters for the ops endpoint.
type Stats struct {
	Settled    int64  `json:"settled"`
	Duplicates int64  `json:"duplicates"`
	Retried    int64  `json:"retried"`
	Breaker    string `json:"breaker"`
}

// Engine runs the settlement cycle on a timer.
type Engine struct {
	store    BetStore
	locks    Locker
	resolver ResultResolver
	queue    *RetryQueue
	breaker  *Breaker
	log      *logrus.Logger
	cfg      Config

	settled    atomic.Int64
	duplicates atomic.Int64
	retried    atomic.Int64
}

// NewEngine wires a settlement engine. WorkerID defaults to a fresh
// uuid when empty.
func NewEngine(store BetStore, locks Locker, resolver ResultResolver, queue *RetryQueue, breaker *Breaker, log *logrus.Logger, cfg Config) *Engine {
	if cfg.WorkerID == "" {
		cfg.WorkerID = uuid.NewString()
	}
	if !cfg.VoidPolicy.Valid() {
		cfg.VoidPolicy = PolicyForceLoss
	}
	return &Engine{
		store:    store,
		locks:    locks,
		resolver: resolver,
		queue:    queue,
		breaker:  breaker,
		log:      log,
		cfg:      cfg,
	}
}

// Stats returns the engine's cumulative counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Settled:    e.settled.Load(),
		Duplicates: e.duplicates.Load(),
		Retried:    e.retried.Load(),
		Breaker:    string(e.breaker.State()),
	}
}

// Run executes settlement cycles until ctx is cancelled. Cancellation
// stops scheduling; an in-flight cycle always finishes, so no bet is
// abandoned mid-settlement.
func (e *Engine) Run(ctx context.Context) {
	e.log.WithFields(logrus.Fields{
		"worker_id": e.cfg.WorkerID,
		"interval":  e.cfg.PollInterval,
		"policy":    e.cfg.VoidPolicy,
	}).Info("settlement engine started")

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	e.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			e.log.Info("settlement engine stopped")
			return
		case <-ticker.C:
			e.runCycle(ctx)
		}
	}
}

// runCycle settles due retries first (priority + due order), then
// sweeps the pending backlog. An open breaker skips the whole cycle.
func (e *Engine) runCycle(ctx context.Context) {
	now := time.Now()
	if !e.breaker.Allow(now) {
		e.log.WithField("state", e.breaker.State()).Warn("circuit open, skipping settlement cycle")
		return
	}

	seen := make(map[int64]bool)

	due, err := e.queue.Due(ctx, now, e.cfg.BatchLimit)
	if err != nil {
		e.log.WithError(err).Error("reading settlement retry queue")
	}
	for _, item := range due {
		if e.breaker.State() == BreakerOpen {
			return
		}
		seen[item.BetID] = true
		bet, err := e.store.GetBet(ctx, item.BetID)
		if err != nil {
			e.log.WithError(err).WithField("bet_id", item.BetID).Error("loading retried bet")
			continue
		}
		if bet == nil || bet.Status.IsTerminal() {
			_ = e.queue.Remove(ctx, item.BetID)
			continue
		}
		e.attempt(ctx, *bet, item.AttemptCount, item.Priority)
	}

	bets, err := e.store.ListPendingBets(ctx, e.cfg.BatchLimit)
	if err != nil {
		e.log.WithError(err).Error("listing pending bets")
		e.breaker.RecordFailure(time.Now())
		return
	}
	for _, bet := range bets {
		if seen[bet.ID] {
			continue
		}
		if e.breaker.State() == BreakerOpen {
			e.log.Warn("circuit opened mid-cycle, abandoning remainder")
			return
		}
		e.attempt(ctx, bet, 0, 1)
	}
}

// attempt settles one bet and feeds the outcome into the breaker and
// retry queue.
func (e *Engine) attempt(ctx context.Context, bet models.Bet, attempts, priority int) {
	settled, err := e.settleBet(ctx, bet)
	if err != nil {
		e.breaker.RecordFailure(time.Now())
		pushed, pushErr := e.queue.Push(ctx, models.SettlementRetryItem{
			BetID:        bet.ID,
			UserID:       bet.UserID,
			Reason:       err.Error(),
			Priority:     priority,
			AttemptCount: attempts,
		})
		if pushErr != nil {
			e.log.WithError(pushErr).WithField("bet_id", bet.ID).Error("queueing settlement retry")
		}
		if pushed {
			e.retried.Add(1)
		}
		return
	}
	if settled {
		e.breaker.RecordSuccess()
		e.settled.Add(1)
	}
}

// settleBet runs the per-bet protocol: lock, idempotency re-check,
// evaluate, atomic commit, unlock. Returns (false, nil) for the
// expected non-outcomes (lock contention, already settled, result not
// yet known); only transient commit failures surface as errors.
func (e *Engine) settleBet(ctx context.Context, bet models.Bet) (bool, error) {
	token := uuid.NewString()
	lockKey := cache.SettlementLockKey(bet.ID)

	acquired, err := e.locks.AcquireLock(ctx, lockKey, token, e.cfg.LockTTL)
	if err != nil {
		return false, err
	}
	if !acquired {
		// Another worker owns this bet this cycle.
		return false, nil
	}
	defer func() {
		// Release must run even when ctx is already cancelled.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := e.locks.ReleaseLock(releaseCtx, lockKey, token); err != nil {
			e.log.WithError(err).WithField("bet_id", bet.ID).Warn("releasing settlement lock")
		}
	}()

	status, err := e.store.GetBetStatus(ctx, bet.ID)
	if err != nil {
		return false, err
	}
	if status.IsTerminal() {
		// A prior cycle or a race winner got here first.
		_ = e.queue.Remove(ctx, bet.ID)
		return false, nil
	}

	selections, err := e.store.GetSelections(ctx, bet.ID)
	if err != nil {
		return false, err
	}
	if len(selections) == 0 {
		return false, nil
	}

	finalStatus, winnings, updates, err := e.evaluate(ctx, bet, selections)
	if errors.Is(err, ErrMatchUnresolved) {
		// Never partially settle: the whole bet waits for results.
		return false, nil
	}
	if err != nil {
		return false, err
	}

	req := contracts.SettlementRequest{
		BetID:          bet.ID,
		UserID:         bet.UserID,
		FinalStatus:    string(finalStatus),
		ActualWinnings: winnings,
		Selections:     updates,
		WorkerID:       e.cfg.WorkerID,
	}
	if err := e.store.SettleAtomically(ctx, req); err != nil {
		if IsDuplicate(err) {
			e.duplicates.Add(1)
			e.log.WithField("bet_id", bet.ID).Info("duplicate settlement prevented")
			_ = e.queue.Remove(ctx, bet.ID)
			return false, nil
		}
		return false, err
	}

	_ = e.queue.Remove(ctx, bet.ID)
	e.log.WithFields(logrus.Fields{
		"bet_id":   bet.ID,
		"status":   finalStatus,
		"winnings": winnings,
	}).Info("bet settled")
	return true, nil
}

// evaluate resolves every selection and folds them into the bet's
// final status and payout. Returns ErrMatchUnresolved when any
// fixture lacks a final result.
func (e *Engine) evaluate(ctx context.Context, bet models.Bet, selections []models.BetSelection) (models.BetStatus, float64, []contracts.SelectionUpdate, error) {
	results := make(map[string]*models.UnifiedMatch, len(selections))
	for _, sel := range selections {
		if _, ok := results[sel.FixtureID]; ok {
			continue
		}
		match, err := e.resolver.Resolve(ctx, sel.FixtureID)
		if err != nil {
			return "", 0, nil, err
		}
		if !match.HasResult() {
			return "", 0, nil, ErrMatchUnresolved
		}
		results[sel.FixtureID] = match
	}

	var won, lost, void int
	updates := make([]contracts.SelectionUpdate, 0, len(selections))
	for _, sel := range selections {
		status, result := evaluateSelection(sel, results[sel.FixtureID], e.cfg.VoidPolicy)
		switch status {
		case models.SelectionWon:
			won++
		case models.SelectionLost:
			lost++
		case models.SelectionVoid:
			void++
		}
		updates = append(updates, contracts.SelectionUpdate{
			SelectionID: sel.ID,
			Status:      string(status),
			Result:      result,
		})
	}

	finalStatus, winnings := betOutcome(bet, len(selections), won, lost, void)
	return finalStatus, winnings, updates, nil
}

// betOutcome folds selection counts into the bet's terminal state and
// payout per bet type.
func betOutcome(bet models.Bet, total, won, lost, void int) (models.BetStatus, float64) {
	switch bet.Type {
	case models.BetTypeSystem:
		// System bets win when at least half the selections win; the
		// payout scales with the won fraction.
		if won*2 >= total {
			return models.BetStatusWon, round2(bet.PotentialWinnings * float64(won) / float64(total))
		}
		return models.BetStatusLost, 0

	default: // single, express
		if lost > 0 {
			return models.BetStatusLost, 0
		}
		if void > 0 {
			// Only reachable under PolicyVoidRefund: the bet cannot
			// stand, so cancel it and return the stake.
			return models.BetStatusCancelled, bet.TotalStake
		}
		return models.BetStatusWon, bet.PotentialWinnings
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
