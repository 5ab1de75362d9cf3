package settler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/DIGITAL-FLOW-SOLUTIONS/ODDROYAL-V2-sub002/pkg/models"
)

// VoidPolicy decides what happens to a selection whose market cannot
// be evaluated: an unsupported market key, an unparsable line, a
// malformed selection. Both policies have shipped at different times,
// so this is configuration, not a constant.
type VoidPolicy string

const (
	// PolicyForceLoss resolves undecidable selections to lost. The bet
	// always reaches a terminal state and no balance leaks through
	// ambiguous voids.
	PolicyForceLoss VoidPolicy = "force-loss"

	// PolicyVoidRefund resolves undecidable selections to void and
	// refunds the stake when the bet would otherwise have stood.
	PolicyVoidRefund VoidPolicy = "void-refund"
)

// Valid reports whether p is a known policy.
func (p VoidPolicy) Valid() bool {
	return p == PolicyForceLoss || p == PolicyVoidRefund
}

// evaluateSelection resolves one selection against the fixture's final
// score. The match must carry a result; callers check HasResult first.
// Undecidable selections fall through to the configured void policy.
func evaluateSelection(sel models.BetSelection, match *models.UnifiedMatch, policy VoidPolicy) (models.SelectionStatus, string) {
	home := match.Scores.Home
	away := match.Scores.Away
	result := fmt.Sprintf("%d-%d", home, away)

	won, ok := decideMarket(sel, home, away)
	if !ok {
		if policy == PolicyVoidRefund {
			return models.SelectionVoid, result
		}
		return models.SelectionLost, result
	}

	if won {
		return models.SelectionWon, result
	}
	return models.SelectionLost, result
}

// decideMarket applies the market rule for the selection. The second
// return value is false when the market or selection cannot be
// evaluated at all.
func decideMarket(sel models.BetSelection, home, away int) (won, ok bool) {
	market := strings.ToLower(sel.Market)
	pick := strings.ToLower(sel.SelectionKey)

	switch {
	case market == "1x2":
		return decide1X2(pick, home, away)

	case strings.HasPrefix(market, "totals"):
		line, err := parseLine(market)
		if err != nil {
			return false, false
		}
		total := float64(home + away)
		if total == line {
			// Push: the total landed exactly on the line. Neither
			// side is decided; the void policy settles it.
			return false, false
		}
		switch pick {
		case "over":
			return total > line, true
		case "under":
			return total < line, true
		}
		return false, false

	case strings.HasPrefix(market, "asian_handicap"):
		line, err := parseLine(market)
		if err != nil {
			return false, false
		}
		adjusted := float64(home) + line
		if adjusted == float64(away) {
			// Push: the handicap exactly cancels the margin.
			return false, false
		}
		switch pick {
		case "home":
			return adjusted > float64(away), true
		case "away":
			return float64(away) > adjusted, true
		}
		return false, false

	case market == "both_teams_to_score" || market == "btts":
		both := home > 0 && away > 0
		switch pick {
		case "yes":
			return both, true
		case "no":
			return !both, true
		}
		return false, false

	case market == "double_chance":
		return decideDoubleChance(pick, home, away)

	case market == "correct_score":
		wantHome, wantAway, err := parseScore(pick)
		if err != nil {
			return false, false
		}
		return home == wantHome && away == wantAway, true
	}

	return false, false
}

func decide1X2(pick string, home, away int) (bool, bool) {
	switch pick {
	case "home", "1":
		return home > away, true
	case "draw", "x":
		return home == away, true
	case "away", "2":
		return away > home, true
	}
	return false, false
}

// decideDoubleChance unions two of the three 1X2 outcomes.
func decideDoubleChance(pick string, home, away int) (bool, bool) {
	switch pick {
	case "1x", "home_draw":
		return home >= away, true
	case "12", "home_away":
		return home != away, true
	case "x2", "draw_away":
		return away >= home, true
	}
	return false, false
}

// parseLine extracts the numeric line from a market key such as
// "totals_2.5" or "asian_handicap_-1.5".
func parseLine(market string) (float64, error) {
	idx := strings.LastIndex(market, "_")
	if idx < 0 || idx == len(market)-1 {
		return 0, fmt.Errorf("market %q carries no line", market)
	}
	line, err := strconv.ParseFloat(market[idx+1:], 64)
	if err != nil {
		return 0, fmt.Errorf("parsing line from %q: %w", market, err)
	}
	return line, nil
}

// parseScore parses an exact "h-a" selection such as "2-1".
func parseScore(pick string) (int, int, error) {
	parts := strings.SplitN(pick, "-", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("selection %q is not an h-a score", pick)
	}
	h, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, err
	}
	a, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, err
	}
	return h, a, nil
}
