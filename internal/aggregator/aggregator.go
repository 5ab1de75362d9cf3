// Package aggregator keeps pub/sub subscribers in sync with canonical
// fixture state using minimal messages. Each poll class (live,
// upcoming, internally edited) runs on its own timer, reconciles the
// cache against upstream truth, and emits only what changed.
package aggregator

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/DIGITAL-FLOW-SOLUTIONS/ODDROYAL-V2-sub002/internal/cache"
	"github.com/DIGITAL-FLOW-SOLUTIONS/ODDROYAL-V2-sub002/pkg/contracts"
	"github.com/DIGITAL-FLOW-SOLUTIONS/ODDROYAL-V2-sub002/pkg/models"
)

// PollClass partitions fixtures by how often they need polling.
type PollClass string

const (
	ClassLive     PollClass = "live"
	ClassUpcoming PollClass = "upcoming"
	ClassEdited   PollClass = "edited"
)

// Fixture snapshot TTLs, by lifecycle phase.
const (
	liveFixtureTTL    = 2 * time.Hour
	finalFixtureTTL   = 6 * time.Hour
	publishedSnapTTL  = 24 * time.Hour
	leagueIndexTTL    = 24 * time.Hour
	h2hSnapshotMarket = "h2h"
)

// Config tunes the aggregator's polling and upstream requests.
type Config struct {
	Sports           []string
	LiveInterval     time.Duration
	UpcomingInterval time.Duration
	EditedInterval   time.Duration
	LiveTTL          time.Duration
	PrematchTTL      time.Duration
	RefreshThreshold float64
	Regions          string
	Markets          string
	OddsFormat       string
	ScoreDaysFrom    int
}

// Aggregator polls canonical state, diffs it against the last
// published snapshots and hands deltas to the batcher.
type Aggregator struct {
	store    *cache.Store
	provider contracts.OddsProvider
	batcher  *Batcher
	log      *logrus.Logger
	cfg      Config
}

// New wires an aggregator instance.
func New(store *cache.Store, provider contracts.OddsProvider, batcher *Batcher, log *logrus.Logger, cfg Config) *Aggregator {
	if cfg.RefreshThreshold <= 0 {
		cfg.RefreshThreshold = cache.DefaultStaleFraction
	}
	return &Aggregator{
		store:    store,
		provider: provider,
		batcher:  batcher,
		log:      log,
		cfg:      cfg,
	}
}

// Run launches one poll loop per sport and class plus the batcher's
// flush loop, and blocks until all of them have stopped.
func (a *Aggregator) Run(ctx context.Context) {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.batcher.Run(ctx)
	}()

	classes := []PollClass{ClassLive, ClassUpcoming, ClassEdited}
	for _, sportKey := range a.cfg.Sports {
		for _, class := range classes {
			wg.Add(1)
			go func(sportKey string, class PollClass) {
				defer wg.Done()
				a.pollLoop(ctx, sportKey, class)
			}(sportKey, class)
		}
	}

	wg.Wait()
	a.log.Info("aggregator stopped")
}

func (a *Aggregator) pollLoop(ctx context.Context, sportKey string, class PollClass) {
	interval := a.classInterval(class)
	a.log.WithFields(logrus.Fields{
		"sport":    sportKey,
		"class":    class,
		"interval": interval,
	}).Info("poll loop started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	a.poll(ctx, sportKey, class)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.poll(ctx, sportKey, class)
		}
	}
}

func (a *Aggregator) poll(ctx context.Context, sportKey string, class PollClass) {
	if err := a.pollOnce(ctx, sportKey, class); err != nil {
		a.log.WithError(err).WithFields(logrus.Fields{
			"sport": sportKey,
			"class": class,
		}).Warn("poll cycle failed")
	}
}

// pollOnce runs one reconciliation cycle for a sport and class: read
// canonical snapshots, refresh from upstream when the read is empty or
// the entry has gone stale, then diff, write back and enqueue.
func (a *Aggregator) pollOnce(ctx context.Context, sportKey string, class PollClass) error {
	key := a.classKey(sportKey, class)
	ttl := a.classTTL(class)

	var matches []models.UnifiedMatch
	meta, err := a.store.Get(ctx, key, &matches)
	if err != nil {
		return err
	}

	switch {
	case meta == nil || len(matches) == 0:
		// Ambiguous: a legitimate empty state and a TTL-expired entry
		// look the same. Refetch before concluding "nothing happened".
		if class == ClassEdited {
			// Internal edits have no upstream to refetch from; an
			// empty read here really is empty.
			return nil
		}
		matches, err = a.refresh(ctx, sportKey, class, key, ttl)
		if err != nil {
			// Upstream failing: keep whatever the cache still holds
			// alive rather than letting it expire under us.
			_, _ = a.store.ExtendTTLIfLow(ctx, key, ttl, a.cfg.RefreshThreshold)
			return err
		}

	default:
		stale, err := a.store.NeedsRefresh(ctx, key, a.cfg.RefreshThreshold, ttl)
		if err != nil {
			return err
		}
		if stale && class != ClassEdited {
			if refreshed, err := a.refresh(ctx, sportKey, class, key, ttl); err == nil {
				matches = refreshed
			} else {
				_, _ = a.store.ExtendTTLIfLow(ctx, key, ttl, a.cfg.RefreshThreshold)
				a.log.WithError(err).WithField("sport", sportKey).Warn("refresh failed, serving stale data")
			}
		}
	}

	now := time.Now().UTC()
	topic := TopicForSport(sportKey)

	for i := range matches {
		match := &matches[i]

		var prev *models.UnifiedMatch
		var prevSnap models.UnifiedMatch
		prevMeta, err := a.store.Get(ctx, cache.PublishedSnapshotKey(match.MatchID), &prevSnap)
		if err != nil {
			return err
		}
		if prevMeta != nil {
			prev = &prevSnap
		}

		diff := Diff(prev, match, now)

		// Canonical write-back: the one write other consumers,
		// including the settlement engine's result lookups, observe.
		if err := a.store.Set(ctx, cache.FixtureKey(match.MatchID), match, a.fixtureTTL(match), cache.Metadata{
			Source: string(match.Source),
		}); err != nil {
			return err
		}

		if len(match.Prices) > 0 {
			if _, err := a.store.RecordOddsSnapshot(ctx, match.MatchID, h2hSnapshotMarket, match.Prices); err != nil {
				a.log.WithError(err).WithField("match_id", match.MatchID).Warn("recording odds snapshot")
			}
		}

		if diff.Empty() {
			continue
		}
		if err := a.store.Set(ctx, cache.PublishedSnapshotKey(match.MatchID), match, publishedSnapTTL, cache.Metadata{
			Source: string(match.Source),
		}); err != nil {
			return err
		}
		a.batcher.Add(ctx, topic, diff)
	}

	return nil
}

// refresh pulls the class's fixtures from upstream, merges live scores
// in, and writes the result back without ever blanking a healthy
// entry.
func (a *Aggregator) refresh(ctx context.Context, sportKey string, class PollClass, key string, ttl time.Duration) ([]models.UnifiedMatch, error) {
	opts := contracts.FetchOptions{
		Regions:    a.cfg.Regions,
		Markets:    a.cfg.Markets,
		OddsFormat: a.cfg.OddsFormat,
	}
	if class == ClassLive {
		opts.Status = "live"
	} else {
		opts.Status = "upcoming"
	}

	events, err := a.provider.FetchOdds(ctx, sportKey, opts)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	matches := make([]models.UnifiedMatch, 0, len(events))
	for _, ev := range events {
		matches = append(matches, convertEvent(ev, now))
		if len(ev.Bookmakers) > 0 {
			if err := a.store.Set(ctx, cache.MatchMarketsKey(ev.ID), ev.Bookmakers, ttl, cache.Metadata{
				Source: string(models.SourceAPI),
			}); err != nil {
				a.log.WithError(err).WithField("match_id", ev.ID).Warn("writing match markets")
			}
		}
	}

	if class == ClassLive {
		scores, err := a.provider.FetchScores(ctx, sportKey, a.cfg.ScoreDaysFrom)
		if err != nil {
			a.log.WithError(err).WithField("sport", sportKey).Warn("fetching scores")
		} else {
			mergeScores(matches, scores)
		}
	}

	written, err := a.store.MergeSet(ctx, key, matches, len(matches), ttl, cache.Metadata{
		Source: string(models.SourceAPI),
	})
	if err != nil {
		return nil, err
	}
	if !written {
		// Empty fetch over a healthy entry was rejected; re-read and
		// keep serving what we have.
		var kept []models.UnifiedMatch
		if _, err := a.store.Get(ctx, key, &kept); err == nil {
			return kept, nil
		}
		return nil, nil
	}

	a.indexLeagues(ctx, sportKey, matches)
	return matches, nil
}

// indexLeagues maintains the league index and per-league match lists
// as idempotent upserts. Order does not matter; there is no multi-key
// transaction and none is needed.
func (a *Aggregator) indexLeagues(ctx context.Context, sportKey string, matches []models.UnifiedMatch) {
	byLeague := make(map[string][]models.UnifiedMatch)
	for _, m := range matches {
		league := m.LeagueID
		if league == "" {
			league = "default"
		}
		byLeague[league] = append(byLeague[league], m)
	}

	leagues := make([]string, 0, len(byLeague))
	for league, group := range byLeague {
		leagues = append(leagues, league)
		live := group[:0:0]
		for _, m := range group {
			if m.Status == models.MatchStatusLive {
				live = append(live, m)
			}
		}
		if len(live) == 0 {
			continue
		}
		if err := a.store.Set(ctx, cache.LiveMatchesKey(sportKey, league), live, a.cfg.LiveTTL, cache.Metadata{
			Source: string(models.SourceAPI),
		}); err != nil {
			a.log.WithError(err).WithField("league", league).Warn("writing league match list")
		}
	}

	if err := a.store.Set(ctx, cache.PrematchLeaguesKey(sportKey), leagues, leagueIndexTTL, cache.Metadata{
		Source: string(models.SourceAPI),
	}); err != nil {
		a.log.WithError(err).WithField("sport", sportKey).Warn("writing league index")
	}
}

func (a *Aggregator) classKey(sportKey string, class PollClass) string {
	switch class {
	case ClassLive:
		return cache.LiveMatchesKey(sportKey, "all")
	case ClassEdited:
		return cache.ManualMatchesKey(sportKey)
	default:
		return cache.PrematchMatchesKey(sportKey)
	}
}

func (a *Aggregator) classInterval(class PollClass) time.Duration {
	switch class {
	case ClassLive:
		return a.cfg.LiveInterval
	case ClassEdited:
		return a.cfg.EditedInterval
	default:
		return a.cfg.UpcomingInterval
	}
}

func (a *Aggregator) classTTL(class PollClass) time.Duration {
	if class == ClassLive {
		return a.cfg.LiveTTL
	}
	return a.cfg.PrematchTTL
}

func (a *Aggregator) fixtureTTL(match *models.UnifiedMatch) time.Duration {
	if match.Status == models.MatchStatusCompleted {
		return finalFixtureTTL
	}
	return liveFixtureTTL
}

// convertEvent maps an upstream event into the canonical snapshot,
// summarizing the first bookmaker's head-to-head prices.
func convertEvent(ev contracts.Event, now time.Time) models.UnifiedMatch {
	status := models.MatchStatusUpcoming
	if !ev.CommenceTime.After(now) {
		status = models.MatchStatusLive
	}

	match := models.UnifiedMatch{
		MatchID:      ev.ID,
		SportKey:     ev.SportKey,
		LeagueID:     ev.LeagueKey,
		HomeTeam:     ev.HomeTeam,
		AwayTeam:     ev.AwayTeam,
		CommenceTime: ev.CommenceTime,
		Status:       status,
		MarketStatus: models.MarketOpen,
		Source:       models.SourceAPI,
	}

	for _, book := range ev.Bookmakers {
		for _, market := range book.Markets {
			if market.Key != h2hSnapshotMarket {
				continue
			}
			prices := make(map[string]float64, len(market.Outcomes))
			for _, outcome := range market.Outcomes {
				prices[normalizeOutcome(outcome.Name, ev)] = outcome.Price
			}
			match.Prices = prices
			return match
		}
	}
	return match
}

// normalizeOutcome maps team-name outcomes onto stable keys.
func normalizeOutcome(name string, ev contracts.Event) string {
	switch {
	case strings.EqualFold(name, ev.HomeTeam):
		return "home"
	case strings.EqualFold(name, ev.AwayTeam):
		return "away"
	case strings.EqualFold(name, "draw"):
		return "draw"
	default:
		return strings.ToLower(name)
	}
}

// mergeScores folds upstream results into the fetched fixtures.
func mergeScores(matches []models.UnifiedMatch, scores []contracts.ScoreEvent) {
	byID := make(map[string]contracts.ScoreEvent, len(scores))
	for _, s := range scores {
		byID[s.ID] = s
	}

	for i := range matches {
		score, ok := byID[matches[i].MatchID]
		if !ok || len(score.Scores) == 0 {
			continue
		}

		var home, away int
		var haveHome, haveAway bool
		for _, ts := range score.Scores {
			n, err := strconv.Atoi(strings.TrimSpace(ts.Score))
			if err != nil {
				continue
			}
			switch {
			case strings.EqualFold(ts.Name, score.HomeTeam):
				home, haveHome = n, true
			case strings.EqualFold(ts.Name, score.AwayTeam):
				away, haveAway = n, true
			}
		}
		if !haveHome || !haveAway {
			continue
		}

		matches[i].Scores = &models.Scores{Home: home, Away: away}
		if score.Completed {
			matches[i].Status = models.MatchStatusCompleted
			matches[i].MarketStatus = models.MarketClosed
		}
	}
}
