// Package policy derives a moderation verdict from claims and their fact
// checks. Evaluate is a pure function: same inputs, same decision, no side
// effects, and the status only ever escalates within one evaluation.
package policy

import (
	"fmt"

	"github.com/veracity-social/veracity/internal/model"
)

// blockConfidence is the confidence a false verdict needs to block content
// outright rather than queue it for review.
const blockConfidence = 0.7

// Evaluate aggregates claims and fact checks into a policy decision using
// worst-wins aggregation: clean -> needs_review -> blocked, never back.
func Evaluate(claims []model.Claim, factChecks []model.FactCheck) model.PolicyDecision {
	if len(claims) == 0 {
		return model.PolicyDecision{
			Status:  model.PolicyClean,
			Reasons: []string{"no verifiable claims"},
		}
	}

	byClaim := make(map[string]*model.FactCheck, len(factChecks))
	for i := range factChecks {
		byClaim[factChecks[i].ClaimID] = &factChecks[i]
	}

	decision := model.PolicyDecision{Status: model.PolicyClean}

	for _, claim := range claims {
		fc, ok := byClaim[claim.ID]
		if !ok {
			decision.Status = decision.Status.Worse(model.PolicyNeedsReview)
			decision.EscalateToHuman = true
			decision.Reasons = append(decision.Reasons,
				fmt.Sprintf("claim %q has no fact-check result", truncate(claim.Text)))
			continue
		}

		switch fc.Verdict {
		case model.VerdictFalse:
			if fc.Confidence > blockConfidence {
				// Terminal: a confident false claim blocks the content no
				// matter what the remaining claims say.
				decision.Status = model.PolicyBlocked
				decision.Reasons = append(decision.Reasons,
					fmt.Sprintf("claim %q verified false (confidence %.2f)", truncate(claim.Text), fc.Confidence))
			} else {
				decision.Status = decision.Status.Worse(model.PolicyNeedsReview)
				decision.Reasons = append(decision.Reasons,
					fmt.Sprintf("claim %q likely false (confidence %.2f)", truncate(claim.Text), fc.Confidence))
			}
		case model.VerdictUnknown, model.VerdictMixed:
			decision.Status = decision.Status.Worse(model.PolicyNeedsReview)
			decision.Reasons = append(decision.Reasons,
				fmt.Sprintf("claim %q is %s", truncate(claim.Text), fc.Verdict))
		}
	}

	if len(decision.Reasons) == 0 {
		decision.Reasons = []string{"all claims verified"}
	}
	return decision
}

func truncate(text string) string {
	const max = 80
	if len(text) <= max {
		return text
	}
	return text[:max] + "..."
}
