package model

import "time"

// MaxClaimTextLen bounds the length of a single claim's text.
const MaxClaimTextLen = 240

// Claim represents an atomic, independently verifiable statement extracted
// from a post or comment. Claims are immutable once attached; the claim list
// on a unit of content is append-only across reprocessing.
type Claim struct {
	ID          string      `json:"id"`         // parent id + ordinal, or agent-supplied token
	Text        string      `json:"text"`       // Non-empty, <= MaxClaimTextLen
	Type        ClaimType   `json:"type"`
	Domain      ClaimDomain `json:"domain"`
	Risk        RiskLevel   `json:"risk"`
	Confidence  float64     `json:"confidence"` // [0,1]
	Evidence    []Evidence  `json:"evidence,omitempty"`
	ExtractedAt time.Time   `json:"extracted_at"`
}

// ClaimType categorizes the nature of the claim.
type ClaimType string

const (
	ClaimTypeFact       ClaimType = "fact"
	ClaimTypeOpinion    ClaimType = "opinion"
	ClaimTypeExperience ClaimType = "experience"
)

// ClaimDomain is the topical domain a claim belongs to.
type ClaimDomain string

const (
	DomainHealth     ClaimDomain = "health"
	DomainFinance    ClaimDomain = "finance"
	DomainPolitics   ClaimDomain = "politics"
	DomainTechnology ClaimDomain = "technology"
	DomainScience    ClaimDomain = "science"
	DomainSociety    ClaimDomain = "society"
	DomainGeneral    ClaimDomain = "general"
)

// RiskLevel indicates how much harm an unverified claim could do.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Evidence represents one cited source supporting or refuting a claim.
// Quality is always recomputed from the URL's domain, never taken from the
// agent's self-report.
type Evidence struct {
	Source  string  `json:"source"`  // Human-readable source label
	URL     string  `json:"url,omitempty"`
	Snippet string  `json:"snippet,omitempty"`
	Quality float64 `json:"quality"` // [0,1], domain-trust derived

	// Liveness annotation, filled by the optional evidence validator.
	Checked    bool `json:"checked,omitempty"`
	Accessible bool `json:"accessible,omitempty"`
}

// Verdict is the fact-check outcome for one claim.
type Verdict string

const (
	VerdictTrue    Verdict = "true"
	VerdictFalse   Verdict = "false"
	VerdictMixed   Verdict = "mixed"
	VerdictUnknown Verdict = "unknown"
)

// FactCheck records the verification outcome for exactly one claim. A fact
// check may be inherited from the original post when the current post is a
// repost or quote, with ClaimID remapped to the local claim.
type FactCheck struct {
	ClaimID    string     `json:"claim_id"`
	Verdict    Verdict    `json:"verdict"`
	Confidence float64    `json:"confidence"` // [0,1]
	Evidence   []Evidence `json:"evidence,omitempty"`
	Caveats    []string   `json:"caveats,omitempty"`
	CheckedAt  time.Time  `json:"checked_at"`
}

// PolicyStatus is the aggregated moderation status for a unit of content.
// Aggregation is worst-wins and only ever escalates within one evaluation.
type PolicyStatus string

const (
	PolicyClean       PolicyStatus = "clean"
	PolicyNeedsReview PolicyStatus = "needs_review"
	PolicyBlocked     PolicyStatus = "blocked"
)

// rank orders policy statuses for worst-wins aggregation.
func (s PolicyStatus) rank() int {
	switch s {
	case PolicyBlocked:
		return 2
	case PolicyNeedsReview:
		return 1
	default:
		return 0
	}
}

// Worse returns the more severe of the two statuses.
func (s PolicyStatus) Worse(other PolicyStatus) PolicyStatus {
	if other.rank() > s.rank() {
		return other
	}
	return s
}

// PolicyDecision is the derived moderation outcome. It is recomputed from
// the current claims and fact checks on every pipeline run and never
// persisted independently; only Status lands in Insights.FactCheckStatus.
type PolicyDecision struct {
	Status          PolicyStatus `json:"status"`
	Reasons         []string     `json:"reasons"`
	EscalateToHuman bool         `json:"escalate_to_human"`
}
