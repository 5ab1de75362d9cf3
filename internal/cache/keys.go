package cache

import "fmt"

// Key builders for the shared namespace. Every component reads through
// these so the layout lives in one place.

// PrematchLeaguesKey indexes the known leagues for a sport.
func PrematchLeaguesKey(sportKey string) string {
	return fmt.Sprintf("prematch:leagues:%s", sportKey)
}

// PrematchMatchesKey holds the upcoming fixtures for a sport.
func PrematchMatchesKey(sportKey string) string {
	return fmt.Sprintf("prematch:matches:%s", sportKey)
}

// LiveMatchesKey holds the live fixtures for a sport and league.
func LiveMatchesKey(sportKey, leagueID string) string {
	return fmt.Sprintf("live:matches:%s:%s", sportKey, leagueID)
}

// ManualMatchesKey holds internally edited fixtures for a sport.
func ManualMatchesKey(sportKey string) string {
	return fmt.Sprintf("manual:matches:%s", sportKey)
}

// MatchMarketsKey holds the full market set for one fixture.
func MatchMarketsKey(matchID string) string {
	return fmt.Sprintf("match:markets:%s", matchID)
}

// FixtureKey is the canonical snapshot for one fixture. This is the
// key the settlement engine resolves results from.
func FixtureKey(matchID string) string {
	return fmt.Sprintf("fixture:%s", matchID)
}

// PublishedSnapshotKey stores the last snapshot the aggregator
// published for a fixture, so diffs survive a restart.
func PublishedSnapshotKey(matchID string) string {
	return fmt.Sprintf("cdc:published:%s", matchID)
}

// SettlementLockKey guards a single bet during settlement.
func SettlementLockKey(betID int64) string {
	return fmt.Sprintf("settlement:lock:%d", betID)
}

// SettlementRetryKey is the ZSET holding due settlement retries.
const SettlementRetryKey = "settlement:retry:queue"

// SettlementRetryItemsKey is the hash holding retry item payloads.
const SettlementRetryItemsKey = "settlement:retry:items"

// OddsSnapshotKey stores the last recorded price set for one market of
// one fixture.
func OddsSnapshotKey(matchID, marketKey string) string {
	return fmt.Sprintf("odds:snapshot:%s:%s", matchID, marketKey)
}
