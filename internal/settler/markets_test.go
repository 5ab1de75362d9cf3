package settler

import (
	"testing"

	"github.com/DIGITAL-FLOW-SOLUTIONS/ODDROYAL-V2-sub002/pkg/models"
)

func TestDecideMarket(t *testing.T) {
	tests := []struct {
		name    string
		market  string
		pick    string
		home    int
		away    int
		wantWon bool
		wantOK  bool
	}{
		{"1x2 home win", "1x2", "home", 2, 1, true, true},
		{"1x2 home loses on draw", "1x2", "home", 1, 1, false, true},
		{"1x2 numeric home", "1x2", "1", 2, 0, true, true},
		{"1x2 draw", "1x2", "draw", 1, 1, true, true},
		{"1x2 numeric draw", "1x2", "x", 0, 0, true, true},
		{"1x2 away", "1x2", "away", 0, 3, true, true},
		{"1x2 numeric away", "1x2", "2", 1, 2, true, true},
		{"1x2 unknown pick", "1x2", "banana", 1, 0, false, false},

		{"totals over hit", "totals_2.5", "over", 2, 1, true, true},
		{"totals over miss", "totals_2.5", "over", 1, 1, false, true},
		{"totals under hit", "totals_2.5", "under", 1, 0, true, true},
		{"totals push over", "totals_2", "over", 1, 1, false, false},
		{"totals push under", "totals_2", "under", 1, 1, false, false},
		{"totals without line", "totals", "over", 2, 1, false, false},

		{"handicap home covers", "asian_handicap_-1.5", "home", 3, 1, true, true},
		{"handicap home fails to cover", "asian_handicap_-1.5", "away", 2, 1, true, true},
		{"handicap plus line", "asian_handicap_1.5", "home", 0, 1, true, true},
		{"handicap push home", "asian_handicap_-1", "home", 2, 1, false, false},
		{"handicap push away", "asian_handicap_-1", "away", 2, 1, false, false},
		{"handicap bad line", "asian_handicap_x", "home", 1, 0, false, false},

		{"btts yes", "both_teams_to_score", "yes", 1, 1, true, true},
		{"btts yes misses", "btts", "yes", 2, 0, false, true},
		{"btts no", "btts", "no", 3, 0, true, true},

		{"double chance 1x on draw", "double_chance", "1x", 1, 1, true, true},
		{"double chance 12 on draw", "double_chance", "12", 2, 2, false, true},
		{"double chance x2 on away win", "double_chance", "x2", 0, 1, true, true},
		{"double chance aliases", "double_chance", "home_draw", 2, 0, true, true},

		{"correct score hit", "correct_score", "2-1", 2, 1, true, true},
		{"correct score miss", "correct_score", "2-1", 1, 2, false, true},
		{"correct score malformed", "correct_score", "two-one", 2, 1, false, false},

		{"unsupported market", "first_goalscorer", "salah", 2, 1, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel := models.BetSelection{Market: tt.market, SelectionKey: tt.pick}
			won, ok := decideMarket(sel, tt.home, tt.away)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && won != tt.wantWon {
				t.Errorf("won = %v, want %v", won, tt.wantWon)
			}
		})
	}
}

func TestEvaluateSelectionVoidPolicy(t *testing.T) {
	match := &models.UnifiedMatch{
		Status: models.MatchStatusCompleted,
		Scores: &models.Scores{Home: 2, Away: 1},
	}
	sel := models.BetSelection{Market: "first_goalscorer", SelectionKey: "salah"}

	status, result := evaluateSelection(sel, match, PolicyForceLoss)
	if status != models.SelectionLost {
		t.Errorf("force-loss status = %s, want lost", status)
	}
	if result != "2-1" {
		t.Errorf("result = %q, want 2-1", result)
	}

	status, _ = evaluateSelection(sel, match, PolicyVoidRefund)
	if status != models.SelectionVoid {
		t.Errorf("void-refund status = %s, want void", status)
	}
}

func TestEvaluateSelectionPushFollowsPolicy(t *testing.T) {
	match := &models.UnifiedMatch{
		Status: models.MatchStatusCompleted,
		Scores: &models.Scores{Home: 1, Away: 1},
	}

	for _, sel := range []models.BetSelection{
		{Market: "totals_2", SelectionKey: "over"},
		{Market: "totals_2", SelectionKey: "under"},
	} {
		status, _ := evaluateSelection(sel, match, PolicyVoidRefund)
		if status != models.SelectionVoid {
			t.Errorf("%s/%s under void-refund = %s, want void", sel.Market, sel.SelectionKey, status)
		}
		status, _ = evaluateSelection(sel, match, PolicyForceLoss)
		if status != models.SelectionLost {
			t.Errorf("%s/%s under force-loss = %s, want lost", sel.Market, sel.SelectionKey, status)
		}
	}

	tied := &models.UnifiedMatch{
		Status: models.MatchStatusCompleted,
		Scores: &models.Scores{Home: 2, Away: 1},
	}
	sel := models.BetSelection{Market: "asian_handicap_-1", SelectionKey: "home"}
	if status, _ := evaluateSelection(sel, tied, PolicyVoidRefund); status != models.SelectionVoid {
		t.Errorf("handicap push under void-refund = %s, want void", status)
	}
}

func TestEvaluateSelectionDecidedMarketIgnoresPolicy(t *testing.T) {
	match := &models.UnifiedMatch{
		Status: models.MatchStatusCompleted,
		Scores: &models.Scores{Home: 0, Away: 0},
	}
	sel := models.BetSelection{Market: "1x2", SelectionKey: "draw"}

	for _, policy := range []VoidPolicy{PolicyForceLoss, PolicyVoidRefund} {
		status, _ := evaluateSelection(sel, match, policy)
		if status != models.SelectionWon {
			t.Errorf("policy %s: status = %s, want won", policy, status)
		}
	}
}

func TestVoidPolicyValid(t *testing.T) {
	if !PolicyForceLoss.Valid() || !PolicyVoidRefund.Valid() {
		t.Error("shipped policies must validate")
	}
	if VoidPolicy("settle-randomly").Valid() {
		t.Error("unknown policy must not validate")
	}
}
