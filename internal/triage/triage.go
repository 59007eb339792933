// Package triage decides whether a unit of content needs fact-check
// verification at all. A cheap deterministic heuristic handles the clear
// cases; the ambiguous middle band consults the LLM gate. The policy is
// fail-open: when in doubt, content is verified, never silently skipped.
package triage

import (
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"

	"github.com/veracity-social/veracity/internal/agent"
	"github.com/veracity-social/veracity/internal/model"
)

// Input is the content under triage.
type Input struct {
	Text     string
	Topics   []string // Optional topic/entity hints
	ImageRef string
}

// Decision is the triage outcome.
type Decision struct {
	NeedsVerification bool    `json:"needs_verification"`
	Risk              float64 `json:"risk"`
	Confidence        float64 `json:"confidence"`
	Reason            string  `json:"reason"`
}

// highRiskTopics are topic/entity hints that raise the heuristic risk.
var highRiskTopics = map[string]bool{
	"health": true, "medicine": true, "vaccine": true, "finance": true,
	"investment": true, "politics": true, "election": true, "science": true,
	"crime": true, "war": true,
}

// highRiskKeywords are body-text tokens that raise the heuristic risk.
var highRiskKeywords = []string{
	"vaccine", "cure", "cancer", "covid", "virus", "miracle",
	"invest", "stock", "crypto", "guaranteed return", "scam",
	"election", "fraud", "rigged", "conspiracy", "cover-up",
}

var (
	numericPattern   = regexp.MustCompile(`\d+(\.\d+)?%|\b(19|20)\d{2}\b|\b\d{4,}\b`)
	authorityPattern = regexp.MustCompile(`(?i)\b(study shows|studies show|according to|experts? say|research(ers)? (show|found|says?)|scientists (say|found)|official(s)? (said|confirmed))\b`)
)

const gateSchema = `{
  "type": "object",
  "properties": {
    "needs_verification": {"type": "boolean"},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "reason": {"type": "string"}
  },
  "required": ["needs_verification", "confidence", "reason"]
}`

// Triage runs the risk assessment.
type Triage struct {
	gate   agent.Agent // nil disables the LLM gate
	config model.TriageConfig
	logger *slog.Logger
}

// New creates a triage stage. The gate agent may be nil.
func New(gate agent.Agent, config model.TriageConfig, logger *slog.Logger) *Triage {
	if logger == nil {
		logger = slog.Default()
	}
	return &Triage{gate: gate, config: config, logger: logger}
}

// HeuristicRisk computes the deterministic risk score in [0,1].
func HeuristicRisk(in Input) float64 {
	if strings.TrimSpace(in.Text) == "" && in.ImageRef == "" {
		return 0
	}

	risk := 0.15
	lower := strings.ToLower(in.Text)

	for _, topic := range in.Topics {
		if highRiskTopics[strings.ToLower(topic)] {
			risk += 0.3
			break
		}
	}
	if numericPattern.MatchString(in.Text) {
		risk += 0.2
	}
	if authorityPattern.MatchString(in.Text) {
		risk += 0.15
	}
	for _, kw := range highRiskKeywords {
		if strings.Contains(lower, kw) {
			risk += 0.2
			break
		}
	}
	switch n := len(in.Text); {
	case n > 280:
		risk += 0.1
	case n > 0 && n < 40:
		risk -= 0.05
	}
	if in.ImageRef != "" {
		risk += 0.05
	}

	if risk < 0 {
		risk = 0
	}
	if risk > 1 {
		risk = 1
	}
	return risk
}

// Assess decides whether the content needs verification.
func (t *Triage) Assess(ctx context.Context, in Input) Decision {
	if strings.TrimSpace(in.Text) == "" && in.ImageRef == "" {
		return Decision{NeedsVerification: false, Risk: 0, Confidence: 1, Reason: "no content"}
	}

	risk := HeuristicRisk(in)

	if risk > t.config.VerifyThreshold {
		return Decision{NeedsVerification: true, Risk: risk, Confidence: 0.9, Reason: "heuristic risk above verify threshold"}
	}
	if risk < t.config.SkipThreshold && in.ImageRef == "" {
		return Decision{NeedsVerification: false, Risk: risk, Confidence: 0.9, Reason: "heuristic risk below skip threshold"}
	}

	// Middle band: consult the gate when available, fail open otherwise.
	if !t.config.UseGate || t.gate == nil {
		return Decision{NeedsVerification: true, Risk: risk, Confidence: 0.5, Reason: "ambiguous risk, verifying (no gate)"}
	}

	gateDecision, err := t.askGate(ctx, in, risk)
	if err != nil {
		t.logger.Warn("triage gate failed, verifying", "error", err)
		return Decision{NeedsVerification: true, Risk: risk, Confidence: 0.5, Reason: "gate unavailable, verifying"}
	}

	// A low-confidence skip from the gate is overridden back to verify
	// while the heuristic risk is still elevated.
	if !gateDecision.NeedsVerification && gateDecision.Confidence < 0.75 && risk >= t.config.OverrideFloor {
		return Decision{
			NeedsVerification: true,
			Risk:              risk,
			Confidence:        gateDecision.Confidence,
			Reason:            "gate skip overridden: elevated heuristic risk",
		}
	}

	gateDecision.Risk = risk
	return gateDecision
}

func (t *Triage) askGate(ctx context.Context, in Input, risk float64) (Decision, error) {
	prompt := "Decide whether this social media content makes factual assertions that warrant verification.\n" +
		"Opinions, personal experiences, and small talk do not.\n\nContent:\n" + in.Text
	if in.ImageRef != "" {
		prompt += "\n\n(The content also includes an image.)"
	}

	req := agent.Request{
		Prompt: prompt,
		System: "You are a triage gate for a fact-checking pipeline. Answer strictly in JSON.",
		Schema: json.RawMessage(gateSchema),
	}

	var result *agent.Result
	var err error
	if in.ImageRef != "" {
		result, err = t.gate.GenerateWithImage(ctx, req, in.ImageRef)
	} else {
		result, err = t.gate.Generate(ctx, req)
	}
	if err != nil {
		return Decision{}, err
	}

	var decision Decision
	if err := result.Decode(&decision); err != nil {
		return Decision{}, err
	}
	return decision, nil
}
