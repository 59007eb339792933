// Package trust maintains the composite per-user reputation score. Updates
// are incremental: each pipeline run contributes whatever signals it
// produced, components with no new signal carry their previous value
// forward, and every update appends a history event.
package trust

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/veracity-social/veracity/internal/ledger"
	"github.com/veracity-social/veracity/internal/model"
	"github.com/veracity-social/veracity/internal/store"
)

// Baseline is the starting score for users with no history.
const Baseline = 50

// Component weights. Quality dominates; community trust is the smallest
// lever so a user cannot vote their way out of bad content.
const (
	weightQuality     = 0.35
	weightViolations  = 0.25
	weightEngagement  = 0.15
	weightConsistency = 0.15
	weightCommunity   = 0.10
)

// Violation penalties and the per-clean-run recovery step.
const (
	penaltyBlocked    = 15
	penaltyReview     = 5
	recoveryPerUpdate = 1
)

// Signals carries the outputs of one pipeline run that feed the trust
// update. Nil fields mean the run produced no signal for that component.
type Signals struct {
	Value      *model.ValueScore
	Policy     *model.PolicyDecision
	Discussion *model.DiscussionQuality
	Aggregates *ledger.Aggregates
	Reason     string
}

// Engine computes and persists trust scores.
type Engine struct {
	store      *store.Store
	baseline   float64
	historyCap int
	logger     *slog.Logger
	nowFunc    func() time.Time
}

// New creates a trust engine. A zero baseline or history cap falls back to
// the defaults.
func New(s *store.Store, config model.TrustConfig, logger *slog.Logger) *Engine {
	if config.Baseline <= 0 {
		config.Baseline = Baseline
	}
	if config.HistoryCap <= 0 {
		config.HistoryCap = 50
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:      s,
		baseline:   config.Baseline,
		historyCap: config.HistoryCap,
		logger:     logger,
		nowFunc:    time.Now,
	}
}

// Update folds one run's signals into the user's trust score and persists
// the result. Users without a score start from the baseline.
func (e *Engine) Update(userID string, sig Signals) (*model.TrustScore, error) {
	ts, err := e.store.GetTrustScore(userID)
	if err != nil {
		return nil, fmt.Errorf("load trust score: %w", err)
	}
	if ts == nil {
		ts = newBaseline(userID, e.baseline)
	}

	prev := ts.Score
	ts.Components = applySignals(ts.Components, sig)
	ts.Score = composite(ts.Components)
	ts.UpdatedAt = e.nowFunc().UTC()

	reason := sig.Reason
	if reason == "" {
		reason = "trust update"
	}
	event := model.TrustEvent{
		Score:  ts.Score,
		Delta:  ts.Score - prev,
		Reason: reason,
		Date:   ts.UpdatedAt,
	}
	// Most recent first, bounded.
	ts.History = append([]model.TrustEvent{event}, ts.History...)
	if len(ts.History) > e.historyCap {
		ts.History = ts.History[:e.historyCap]
	}

	if err := e.store.PutTrustScore(ts); err != nil {
		return nil, fmt.Errorf("save trust score: %w", err)
	}
	e.logger.Debug("trust score updated",
		"user_id", userID, "score", ts.Score, "delta", event.Delta, "reason", reason)
	return ts, nil
}

func newBaseline(userID string, baseline float64) *model.TrustScore {
	return &model.TrustScore{
		UserID: userID,
		Score:  baseline,
		Components: model.TrustComponents{
			ContentQuality: baseline,
			Violations:     baseline,
			Engagement:     baseline,
			Consistency:    baseline,
			CommunityTrust: baseline,
		},
	}
}

// applySignals returns the updated components. A component with no signal
// in this run keeps its previous value.
func applySignals(c model.TrustComponents, sig Signals) model.TrustComponents {
	if sig.Value != nil {
		scaled := sig.Value.Total * 100
		// Quality moves slowly: one post shifts it a fifth of the way.
		stability := 100 - math.Abs(scaled-c.ContentQuality)
		c.ContentQuality = clamp100(0.8*c.ContentQuality + 0.2*scaled)
		c.Consistency = clamp100(0.9*c.Consistency + 0.1*clamp100(stability))
	}

	if sig.Policy != nil {
		switch sig.Policy.Status {
		case model.PolicyBlocked:
			c.Violations = clamp100(c.Violations - penaltyBlocked)
		case model.PolicyNeedsReview:
			c.Violations = clamp100(c.Violations - penaltyReview)
		case model.PolicyClean:
			c.Violations = clamp100(c.Violations + recoveryPerUpdate)
		}
	}

	if sig.Aggregates != nil {
		// Five window contributions saturate engagement at 100.
		c.Engagement = clamp100(float64(sig.Aggregates.WindowCount) * 20)
	}

	if sig.Discussion != nil {
		health := (sig.Discussion.Constructiveness + sig.Discussion.Civility) / 2 * 100
		c.CommunityTrust = clamp100(0.7*c.CommunityTrust + 0.3*health)
	}

	return c
}

// composite collapses the components into the headline score.
func composite(c model.TrustComponents) float64 {
	score := weightQuality*c.ContentQuality +
		weightViolations*c.Violations +
		weightEngagement*c.Engagement +
		weightConsistency*c.Consistency +
		weightCommunity*c.CommunityTrust
	return clamp100(score)
}

func clamp100(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
