// Package extract converts raw post/comment content into a set of atomic,
// typed claims. The generative agent does the heavy lifting; a deterministic
// heuristic extractor guarantees that non-empty input never yields an empty
// claim set.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/veracity-social/veracity/internal/agent"
	"github.com/veracity-social/veracity/internal/model"
)

const claimsSchema = `{
  "type": "object",
  "properties": {
    "claims": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "text": {"type": "string", "maxLength": 240},
          "type": {"type": "string", "enum": ["fact", "opinion", "experience"]},
          "domain": {"type": "string", "enum": ["health", "finance", "politics", "technology", "science", "society", "general"]},
          "risk": {"type": "string", "enum": ["low", "medium", "high"]},
          "confidence": {"type": "number", "minimum": 0, "maximum": 1}
        },
        "required": ["text", "type", "domain", "risk", "confidence"]
      }
    }
  },
  "required": ["claims"]
}`

const strictSuffix = "\n\nIMPORTANT: every claim MUST have non-empty text. Do not return claims with empty or whitespace-only text. If no verifiable claims exist, return an empty claims array."

// Input is one extraction request. Quoted is the re-shared unit whose
// text/image must also be mined, nil when the content is original.
type Input struct {
	Content model.Content
	Quoted  model.Content
}

// Extractor extracts claims from content.
type Extractor struct {
	agent  agent.Agent // nil forces the heuristic path
	config model.ExtractConfig
	logger *slog.Logger
}

// New creates a claim extractor. The agent may be nil.
func New(a agent.Agent, config model.ExtractConfig, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if config.MaxClaims <= 0 {
		config.MaxClaims = 10
	}
	if config.FallbackSentences <= 0 {
		config.FallbackSentences = 3
	}
	if config.FallbackConf <= 0 {
		config.FallbackConf = 0.35
	}
	return &Extractor{agent: a, config: config, logger: logger}
}

// Extract returns the claims found in the content. Empty input yields an
// empty list; any non-empty text or image yields at least one claim.
func (e *Extractor) Extract(ctx context.Context, in Input) ([]model.Claim, error) {
	text := StripMarkup(in.Content.Body())
	imageRef := in.Content.ImageRef()

	var quotedText, quotedImage string
	if in.Quoted != nil {
		quotedText = StripMarkup(in.Quoted.Body())
		if imageRef == "" {
			quotedImage = in.Quoted.ImageRef()
		}
	}

	if strings.TrimSpace(text) == "" && strings.TrimSpace(quotedText) == "" && imageRef == "" && quotedImage == "" {
		return []model.Claim{}, nil
	}

	parentID := in.Content.ContentID()

	if e.agent != nil && e.agent.IsAvailable(ctx) {
		claims, err := e.extractWithAgent(ctx, parentID, text, quotedText, firstNonEmpty(imageRef, quotedImage), false)
		if err == nil && len(claims) > 0 {
			return claims, nil
		}
		if err != nil {
			e.logger.Warn("agent extraction failed, retrying strict", "content_id", parentID, "error", err)
		}

		// One strict retry demanding non-empty claim text; empty output on
		// real content is a data-quality bug, not a valid result.
		claims, err = e.extractWithAgent(ctx, parentID, text, quotedText, firstNonEmpty(imageRef, quotedImage), true)
		if err == nil && len(claims) > 0 {
			return claims, nil
		}
		if err != nil {
			e.logger.Warn("strict agent extraction failed, using heuristic", "content_id", parentID, "error", err)
		}
	}

	return e.heuristicClaims(parentID, text, quotedText, firstNonEmpty(imageRef, quotedImage)), nil
}

func (e *Extractor) extractWithAgent(ctx context.Context, parentID, text, quotedText, imageRef string, strict bool) ([]model.Claim, error) {
	prompt := buildExtractionPrompt(text, quotedText, e.config.MaxClaims)
	if strict {
		prompt += strictSuffix
	}

	req := agent.Request{
		Prompt: prompt,
		System: "You extract atomic, independently verifiable claims from social media content.",
		Schema: json.RawMessage(claimsSchema),
	}

	var result *agent.Result
	var err error
	if imageRef != "" {
		result, err = e.agent.GenerateWithImage(ctx, req, imageRef)
	} else {
		result, err = e.agent.Generate(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Claims []struct {
			Text       string  `json:"text"`
			Type       string  `json:"type"`
			Domain     string  `json:"domain"`
			Risk       string  `json:"risk"`
			Confidence float64 `json:"confidence"`
		} `json:"claims"`
	}
	if err := result.Decode(&parsed); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	claims := make([]model.Claim, 0, len(parsed.Claims))
	for _, c := range parsed.Claims {
		claimText := strings.TrimSpace(c.Text)
		if claimText == "" {
			continue
		}
		claimText = truncate(claimText, model.MaxClaimTextLen)
		claims = append(claims, model.Claim{
			ID:          fmt.Sprintf("%s-c%d", parentID, len(claims)),
			Text:        claimText,
			Type:        parseClaimType(c.Type),
			Domain:      parseDomain(c.Domain),
			Risk:        parseRisk(c.Risk),
			Confidence:  clamp01(c.Confidence),
			ExtractedAt: now,
		})
		if len(claims) >= e.config.MaxClaims {
			break
		}
	}
	return claims, nil
}

func buildExtractionPrompt(text, quotedText string, maxClaims int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Extract up to %d atomic, independently verifiable claims from the content below.\n", maxClaims)
	b.WriteString("Classify each claim's type (fact/opinion/experience), topical domain, and misinformation risk.\n")
	b.WriteString("A claim is one checkable statement; split compound statements.\n\nContent:\n")
	b.WriteString(text)
	if strings.TrimSpace(quotedText) != "" {
		b.WriteString("\n\nQuoted content (mine this too):\n")
		b.WriteString(quotedText)
	}
	return b.String()
}

// heuristicClaims is the deterministic fallback used when the agent is
// unavailable or keeps returning unusable output.
func (e *Extractor) heuristicClaims(parentID, text, quotedText, imageRef string) []model.Claim {
	combined := strings.TrimSpace(text)
	if q := strings.TrimSpace(quotedText); q != "" {
		if combined != "" {
			combined += " "
		}
		combined += q
	}

	now := time.Now().UTC()

	if combined == "" {
		// Image-only content: exactly one low-confidence placeholder, never
		// an empty set.
		if imageRef == "" {
			return []model.Claim{}
		}
		return []model.Claim{{
			ID:          parentID + "-c0",
			Text:        "Image content without machine-readable text",
			Type:        model.ClaimTypeFact,
			Domain:      model.DomainGeneral,
			Risk:        model.RiskLow,
			Confidence:  0.2,
			ExtractedAt: now,
		}}
	}

	sentences := SplitSentences(combined)
	var claims []model.Claim
	for _, sentence := range sentences {
		if len(claims) >= e.config.FallbackSentences {
			break
		}
		claimText := truncate(sentence, model.MaxClaimTextLen)

		claimType := model.ClaimTypeFact
		if hasFirstPerson(sentence) {
			claimType = model.ClaimTypeExperience
		}
		domain := classifyDomain(sentence)
		risk := model.RiskLow
		switch domain {
		case model.DomainHealth, model.DomainFinance, model.DomainPolitics:
			risk = model.RiskMedium
		}

		claims = append(claims, model.Claim{
			ID:          fmt.Sprintf("%s-c%d", parentID, len(claims)),
			Text:        claimText,
			Type:        claimType,
			Domain:      domain,
			Risk:        risk,
			Confidence:  e.config.FallbackConf,
			ExtractedAt: now,
		})
	}

	if len(claims) == 0 {
		// Text exists but segmented to nothing usable; keep one claim from
		// the raw text so downstream stages still see the content.
		claimText := truncate(combined, model.MaxClaimTextLen)
		claims = append(claims, model.Claim{
			ID:          parentID + "-c0",
			Text:        claimText,
			Type:        model.ClaimTypeFact,
			Domain:      classifyDomain(combined),
			Risk:        model.RiskLow,
			Confidence:  e.config.FallbackConf,
			ExtractedAt: now,
		})
	}

	return claims
}

var firstPersonWords = []string{"i ", "i'", "my ", "me ", "we ", "our ", "mine "}

func hasFirstPerson(sentence string) bool {
	lower := " " + strings.ToLower(sentence)
	for _, w := range firstPersonWords {
		if strings.Contains(lower, " "+w) {
			return true
		}
	}
	return false
}

var domainKeywords = map[model.ClaimDomain][]string{
	model.DomainHealth:  {"vaccine", "doctor", "disease", "health", "medical", "cancer", "virus", "sick", "drug", "cure"},
	model.DomainFinance: {"invest", "stock", "crypto", "money", "bank", "market", "inflation", "price", "profit"},
	model.DomainPolitics: {"election", "government", "policy", "senator", "president", "vote", "congress", "law"},
}

func classifyDomain(text string) model.ClaimDomain {
	lower := strings.ToLower(text)
	for _, domain := range []model.ClaimDomain{model.DomainHealth, model.DomainFinance, model.DomainPolitics} {
		for _, kw := range domainKeywords[domain] {
			if strings.Contains(lower, kw) {
				return domain
			}
		}
	}
	return model.DomainGeneral
}

func parseClaimType(s string) model.ClaimType {
	switch model.ClaimType(strings.ToLower(s)) {
	case model.ClaimTypeOpinion:
		return model.ClaimTypeOpinion
	case model.ClaimTypeExperience:
		return model.ClaimTypeExperience
	default:
		return model.ClaimTypeFact
	}
}

func parseDomain(s string) model.ClaimDomain {
	d := model.ClaimDomain(strings.ToLower(s))
	switch d {
	case model.DomainHealth, model.DomainFinance, model.DomainPolitics,
		model.DomainTechnology, model.DomainScience, model.DomainSociety:
		return d
	default:
		return model.DomainGeneral
	}
}

func parseRisk(s string) model.RiskLevel {
	switch model.RiskLevel(strings.ToLower(s)) {
	case model.RiskHigh:
		return model.RiskHigh
	case model.RiskMedium:
		return model.RiskMedium
	default:
		return model.RiskLow
	}
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

// truncate shortens s to at most limit bytes, backing up to a rune boundary
// so multibyte text is never cut mid-rune.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
