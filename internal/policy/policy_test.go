package policy

import (
	"testing"

	"github.com/veracity-social/veracity/internal/model"
)

func claim(id string) model.Claim {
	return model.Claim{ID: id, Text: "claim " + id, Type: model.ClaimTypeFact}
}

func check(claimID string, verdict model.Verdict, confidence float64) model.FactCheck {
	return model.FactCheck{ClaimID: claimID, Verdict: verdict, Confidence: confidence}
}

func TestEvaluate_NoClaims(t *testing.T) {
	d := Evaluate(nil, nil)
	if d.Status != model.PolicyClean {
		t.Errorf("No claims must be clean, got %s", d.Status)
	}
	if len(d.Reasons) == 0 {
		t.Error("Decision must carry a reason")
	}
}

func TestEvaluate_AllVerifiedTrue(t *testing.T) {
	claims := []model.Claim{claim("c1"), claim("c2")}
	checks := []model.FactCheck{
		check("c1", model.VerdictTrue, 0.9),
		check("c2", model.VerdictTrue, 0.8),
	}

	d := Evaluate(claims, checks)
	if d.Status != model.PolicyClean {
		t.Errorf("All-true claims must be clean, got %s", d.Status)
	}
	if d.EscalateToHuman {
		t.Error("Clean content must not escalate")
	}
	if len(d.Reasons) != 1 || d.Reasons[0] != "all claims verified" {
		t.Errorf("Unexpected reasons: %v", d.Reasons)
	}
}

func TestEvaluate_ConfidentFalseBlocks(t *testing.T) {
	claims := []model.Claim{claim("c1"), claim("c2")}
	checks := []model.FactCheck{
		check("c1", model.VerdictTrue, 0.95),
		check("c2", model.VerdictFalse, 0.85),
	}

	d := Evaluate(claims, checks)
	if d.Status != model.PolicyBlocked {
		t.Errorf("Confident false claim must block, got %s", d.Status)
	}
}

func TestEvaluate_LowConfidenceFalseNeedsReview(t *testing.T) {
	claims := []model.Claim{claim("c1")}
	checks := []model.FactCheck{check("c1", model.VerdictFalse, 0.6)}

	d := Evaluate(claims, checks)
	if d.Status != model.PolicyNeedsReview {
		t.Errorf("Uncertain false claim must need review, got %s", d.Status)
	}
}

func TestEvaluate_ExactlyThresholdConfidenceDoesNotBlock(t *testing.T) {
	claims := []model.Claim{claim("c1")}
	checks := []model.FactCheck{check("c1", model.VerdictFalse, 0.7)}

	d := Evaluate(claims, checks)
	if d.Status != model.PolicyNeedsReview {
		t.Errorf("Blocking requires confidence strictly above 0.7, got %s", d.Status)
	}
}

func TestEvaluate_UnknownAndMixedNeedReview(t *testing.T) {
	for _, verdict := range []model.Verdict{model.VerdictUnknown, model.VerdictMixed} {
		claims := []model.Claim{claim("c1")}
		checks := []model.FactCheck{check("c1", verdict, 0.5)}

		d := Evaluate(claims, checks)
		if d.Status != model.PolicyNeedsReview {
			t.Errorf("%s verdict must need review, got %s", verdict, d.Status)
		}
	}
}

func TestEvaluate_MissingFactCheckEscalates(t *testing.T) {
	claims := []model.Claim{claim("c1"), claim("c2")}
	checks := []model.FactCheck{check("c1", model.VerdictTrue, 0.9)}

	d := Evaluate(claims, checks)
	if d.Status != model.PolicyNeedsReview {
		t.Errorf("Claim without a fact check must need review, got %s", d.Status)
	}
	if !d.EscalateToHuman {
		t.Error("Missing fact check must escalate to a human")
	}
}

func TestEvaluate_WorstWins(t *testing.T) {
	// needs_review first, then blocked, then clean: blocked must win.
	claims := []model.Claim{claim("c1"), claim("c2"), claim("c3")}
	checks := []model.FactCheck{
		check("c1", model.VerdictUnknown, 0.4),
		check("c2", model.VerdictFalse, 0.9),
		check("c3", model.VerdictTrue, 0.99),
	}

	d := Evaluate(claims, checks)
	if d.Status != model.PolicyBlocked {
		t.Errorf("Blocked is terminal and must win, got %s", d.Status)
	}
	// Reasons accumulate for every flagged claim
	if len(d.Reasons) != 2 {
		t.Errorf("Expected 2 reasons (unknown + false), got %v", d.Reasons)
	}
}

func TestEvaluate_StatusNeverDeescalates(t *testing.T) {
	// A trailing true verdict must not soften an earlier escalation.
	claims := []model.Claim{claim("c1"), claim("c2")}
	checks := []model.FactCheck{
		check("c1", model.VerdictMixed, 0.5),
		check("c2", model.VerdictTrue, 0.99),
	}

	d := Evaluate(claims, checks)
	if d.Status != model.PolicyNeedsReview {
		t.Errorf("Status must never de-escalate, got %s", d.Status)
	}
}

func TestEvaluate_IsDeterministic(t *testing.T) {
	claims := []model.Claim{claim("c1"), claim("c2")}
	checks := []model.FactCheck{
		check("c1", model.VerdictFalse, 0.9),
		check("c2", model.VerdictUnknown, 0.3),
	}

	first := Evaluate(claims, checks)
	second := Evaluate(claims, checks)
	if first.Status != second.Status || len(first.Reasons) != len(second.Reasons) {
		t.Errorf("Same inputs must give the same decision: %+v vs %+v", first, second)
	}
}
