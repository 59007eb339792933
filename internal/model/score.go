package model

import "time"

// ValueScore is the five-dimensional content value vector produced by the
// value scorer. Each dimension and Total are in [0,1].
type ValueScore struct {
	Epistemic  float64   `json:"epistemic"`  // Verifiable, well-supported information
	Insight    float64   `json:"insight"`    // Novel perspective or analysis
	Practical  float64   `json:"practical"`  // Actionable usefulness
	Relational float64   `json:"relational"` // Constructive community effect
	Effort     float64   `json:"effort"`     // Apparent care in composition
	Total      float64   `json:"total"`
	Confidence float64   `json:"confidence"`
	Drivers    []string  `json:"drivers,omitempty"` // Labels for what drove the score
	UpdatedAt  time.Time `json:"updated_at"`
}

// DiscussionQuality captures discussion-health metrics for a comment thread.
type DiscussionQuality struct {
	Constructiveness float64   `json:"constructiveness"` // [0,1]
	Civility         float64   `json:"civility"`         // [0,1]
	Depth            float64   `json:"depth"`            // [0,1]
	UpdatedAt        time.Time `json:"updated_at"`
}

// ContributionType distinguishes ledger entries by the kind of content that
// produced them.
type ContributionType string

const (
	ContributionPost    ContributionType = "post"
	ContributionComment ContributionType = "comment"
)

// ContributionRecord is one append-only ledger row. Rows are never updated
// or deleted; rolling aggregates are recomputed by range query so the
// 30-day window decays without an expiry job.
type ContributionRecord struct {
	ID        string           `json:"id"`
	UserID    string           `json:"user_id"`
	Type      ContributionType `json:"type"`
	Value     float64          `json:"value"`
	Domain    ClaimDomain      `json:"domain"`
	SourceID  string           `json:"source_id"` // Post or comment id
	CreatedAt time.Time        `json:"created_at"`
}

// TrustComponents are the five labeled inputs to the composite trust score,
// each bounded to [0,100].
type TrustComponents struct {
	ContentQuality float64 `json:"content_quality"`
	Violations     float64 `json:"violations"` // Higher is better (fewer violations)
	Engagement     float64 `json:"engagement"`
	Consistency    float64 `json:"consistency"`
	CommunityTrust float64 `json:"community_trust"`
}

// TrustEvent is one history entry for a user's trust score, most recent
// first in TrustScore.History.
type TrustEvent struct {
	Score  float64   `json:"score"`
	Delta  float64   `json:"delta"`
	Reason string    `json:"reason"`
	Date   time.Time `json:"date"`
}

// TrustScore is the composite, history-tracked reputation score for a user.
// Score and every component stay within [0,100]; History is capped.
type TrustScore struct {
	UserID     string          `json:"user_id"`
	Score      float64         `json:"score"`
	Components TrustComponents `json:"components"`
	History    []TrustEvent    `json:"history,omitempty"`
	UpdatedAt  time.Time       `json:"updated_at"`
}
