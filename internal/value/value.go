// Package value scores the contribution value of content and the health of
// its discussion. The scorer and analyzer are external collaborators to the
// orchestrator: it consumes their interfaces and persists whatever they
// produce, treating any failure as an isolated stage failure.
package value

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/veracity-social/veracity/internal/agent"
	"github.com/veracity-social/veracity/internal/model"
)

// Scorer produces the five-dimensional value vector for one unit of
// content, plus a short human-readable explanation.
type Scorer interface {
	Score(ctx context.Context, content model.Content, claims []model.Claim, checks []model.FactCheck) (*model.ValueScore, string, error)
}

// DiscussionAnalyzer produces discussion-quality metrics for a post's
// comment thread.
type DiscussionAnalyzer interface {
	Analyze(ctx context.Context, post *model.Post, comments []*model.Comment) (*model.DiscussionQuality, error)
}

const scoreSchema = `{
  "type": "object",
  "properties": {
    "epistemic": {"type": "number", "minimum": 0, "maximum": 1},
    "insight": {"type": "number", "minimum": 0, "maximum": 1},
    "practical": {"type": "number", "minimum": 0, "maximum": 1},
    "relational": {"type": "number", "minimum": 0, "maximum": 1},
    "effort": {"type": "number", "minimum": 0, "maximum": 1},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "drivers": {"type": "array", "items": {"type": "string"}},
    "explanation": {"type": "string"}
  },
  "required": ["epistemic", "insight", "practical", "relational", "effort", "confidence"]
}`

const discussionSchema = `{
  "type": "object",
  "properties": {
    "constructiveness": {"type": "number", "minimum": 0, "maximum": 1},
    "civility": {"type": "number", "minimum": 0, "maximum": 1},
    "depth": {"type": "number", "minimum": 0, "maximum": 1}
  },
  "required": ["constructiveness", "civility", "depth"]
}`

// AgentScorer is the default agent-backed value scorer.
type AgentScorer struct {
	agent   agent.Agent
	nowFunc func() time.Time
}

// NewAgentScorer creates an agent-backed scorer.
func NewAgentScorer(a agent.Agent) *AgentScorer {
	return &AgentScorer{agent: a, nowFunc: time.Now}
}

// Score asks the agent for a value vector and explanation.
func (s *AgentScorer) Score(ctx context.Context, content model.Content, claims []model.Claim, checks []model.FactCheck) (*model.ValueScore, string, error) {
	if s.agent == nil {
		return nil, "", fmt.Errorf("value scorer: %w", agent.ErrUnavailable)
	}

	var b strings.Builder
	b.WriteString("Score this social media content on five value dimensions:\n")
	b.WriteString("- epistemic: verifiable, well-supported information\n")
	b.WriteString("- insight: novel perspective or analysis\n")
	b.WriteString("- practical: actionable usefulness\n")
	b.WriteString("- relational: constructive community effect\n")
	b.WriteString("- effort: apparent care in composition\n\n")
	fmt.Fprintf(&b, "Content:\n%s\n", content.Body())
	if len(claims) > 0 {
		fmt.Fprintf(&b, "\nExtracted claims: %d; verified outcomes:\n", len(claims))
		for _, fc := range checks {
			fmt.Fprintf(&b, "- %s (confidence %.2f)\n", fc.Verdict, fc.Confidence)
		}
	}
	b.WriteString("\nInclude a one-sentence explanation of the dominant drivers.")

	result, err := s.agent.Generate(ctx, agent.Request{
		Prompt: b.String(),
		System: "You evaluate the contribution value of social media content. Answer strictly in JSON.",
		Schema: json.RawMessage(scoreSchema),
	})
	if err != nil {
		return nil, "", err
	}

	var parsed struct {
		Epistemic   float64  `json:"epistemic"`
		Insight     float64  `json:"insight"`
		Practical   float64  `json:"practical"`
		Relational  float64  `json:"relational"`
		Effort      float64  `json:"effort"`
		Confidence  float64  `json:"confidence"`
		Drivers     []string `json:"drivers"`
		Explanation string   `json:"explanation"`
	}
	if err := result.Decode(&parsed); err != nil {
		return nil, "", err
	}

	score := &model.ValueScore{
		Epistemic:  clamp01(parsed.Epistemic),
		Insight:    clamp01(parsed.Insight),
		Practical:  clamp01(parsed.Practical),
		Relational: clamp01(parsed.Relational),
		Effort:     clamp01(parsed.Effort),
		Confidence: clamp01(parsed.Confidence),
		Drivers:    parsed.Drivers,
		UpdatedAt:  s.nowFunc().UTC(),
	}
	score.Total = Total(score)
	return score, strings.TrimSpace(parsed.Explanation), nil
}

// Total combines the five dimensions into one number. Epistemic value
// weighs heaviest; effort alone cannot carry a post.
func Total(s *model.ValueScore) float64 {
	total := 0.3*s.Epistemic + 0.25*s.Insight + 0.2*s.Practical + 0.15*s.Relational + 0.1*s.Effort
	return clamp01(total)
}

// AgentDiscussionAnalyzer is the default agent-backed discussion analyzer.
type AgentDiscussionAnalyzer struct {
	agent       agent.Agent
	maxComments int
	nowFunc     func() time.Time
}

// NewAgentDiscussionAnalyzer creates an agent-backed discussion analyzer.
func NewAgentDiscussionAnalyzer(a agent.Agent) *AgentDiscussionAnalyzer {
	return &AgentDiscussionAnalyzer{agent: a, maxComments: 30, nowFunc: time.Now}
}

// Analyze asks the agent for discussion-quality metrics over the thread.
func (d *AgentDiscussionAnalyzer) Analyze(ctx context.Context, post *model.Post, comments []*model.Comment) (*model.DiscussionQuality, error) {
	if d.agent == nil {
		return nil, fmt.Errorf("discussion analyzer: %w", agent.ErrUnavailable)
	}
	if len(comments) == 0 {
		return nil, nil
	}

	var b strings.Builder
	b.WriteString("Rate the quality of this comment thread.\n\n")
	fmt.Fprintf(&b, "Post:\n%s\n\nComments:\n", post.Text)
	for i, c := range comments {
		if i >= d.maxComments {
			fmt.Fprintf(&b, "... and %d more comments\n", len(comments)-d.maxComments)
			break
		}
		fmt.Fprintf(&b, "- %s\n", c.Text)
	}

	result, err := d.agent.Generate(ctx, agent.Request{
		Prompt: b.String(),
		System: "You evaluate discussion health on social platforms. Answer strictly in JSON.",
		Schema: json.RawMessage(discussionSchema),
	})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Constructiveness float64 `json:"constructiveness"`
		Civility         float64 `json:"civility"`
		Depth            float64 `json:"depth"`
	}
	if err := result.Decode(&parsed); err != nil {
		return nil, err
	}

	return &model.DiscussionQuality{
		Constructiveness: clamp01(parsed.Constructiveness),
		Civility:         clamp01(parsed.Civility),
		Depth:            clamp01(parsed.Depth),
		UpdatedAt:        d.nowFunc().UTC(),
	}, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
