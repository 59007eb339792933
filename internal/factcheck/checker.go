package factcheck

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/veracity-social/veracity/internal/agent"
	"github.com/veracity-social/veracity/internal/cache"
	"github.com/veracity-social/veracity/internal/metrics"
	"github.com/veracity-social/veracity/internal/model"
	"github.com/veracity-social/veracity/internal/worker"
)

const fallbackConfidence = 0.25

const fallbackCaveat = "automatic fallback: claim could not be verified by any agent"

const verdictSchema = `{
  "type": "object",
  "properties": {
    "verdict": {"type": "string", "enum": ["true", "false", "mixed", "unknown"]},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "evidence": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "source": {"type": "string"},
          "url": {"type": "string"},
          "snippet": {"type": "string"}
        },
        "required": ["source"]
      }
    },
    "caveats": {"type": "array", "items": {"type": "string"}}
  },
  "required": ["verdict", "confidence"]
}`

// ReuseSource carries a quoted post's completed claims and fact checks so
// matching claims skip verification entirely.
type ReuseSource struct {
	Claims     []model.Claim
	FactChecks []model.FactCheck
}

// Checker verifies claims against evidence.
type Checker struct {
	textAgent   agent.Agent       // nil forces the deterministic fallback
	searchAgent agent.SearchAgent // nil skips the search-augmented step
	trust       *DomainTrust
	validator   *LinkValidator // nil disables liveness annotation
	verdicts    cache.Cache    // nil disables the verdict cache
	limiter     *worker.Limiter
	config      model.VerifyConfig
	logger      *slog.Logger
	nowFunc     func() time.Time
}

// New creates a checker. Both agents may be nil; the checker then produces
// deterministic unknown verdicts only.
func New(textAgent agent.Agent, searchAgent agent.SearchAgent, verdicts cache.Cache, limiter *worker.Limiter, config model.VerifyConfig, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 4
	}
	if config.SimilarityFloor <= 0 {
		config.SimilarityFloor = 0.7
	}

	c := &Checker{
		textAgent:   textAgent,
		searchAgent: searchAgent,
		trust:       NewDomainTrust(config.TrustedDomains, config.BlockedDomains),
		verdicts:    verdicts,
		limiter:     limiter,
		config:      config,
		logger:      logger,
		nowFunc:     time.Now,
	}
	if config.ValidateLinks {
		c.validator = NewLinkValidator(config.LinkTimeout, config.LinkWorkers, config.UserAgent)
	}
	return c
}

// CheckAll verifies every claim for one unit of content. Reused verdicts
// are matched first; the rest fan out concurrently under the configured
// cap. The result always has one fact check per claim.
func (c *Checker) CheckAll(ctx context.Context, content model.Content, claims []model.Claim, reuse *ReuseSource) []model.FactCheck {
	if len(claims) == 0 {
		return []model.FactCheck{}
	}

	results := make([]model.FactCheck, len(claims))
	var pending []int

	for i, claim := range claims {
		if fc, ok := c.reuseVerdict(claim, reuse); ok {
			metrics.VerdictsReused.Inc()
			results[i] = fc
			continue
		}
		if fc, ok := c.cachedVerdict(claim); ok {
			results[i] = fc
			continue
		}
		pending = append(pending, i)
	}

	if len(pending) == 0 {
		return results
	}

	// Per-claim verification calls are independent; bound the fan-out so
	// upstream rate limits are respected.
	sem := make(chan struct{}, c.config.MaxConcurrent)
	var wg sync.WaitGroup
	for _, idx := range pending {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			select {
			case <-ctx.Done():
				results[i] = c.fallbackVerdict(claims[i], "context cancelled")
				return
			case sem <- struct{}{}:
			}
			defer func() { <-sem }()

			results[i] = c.checkOne(ctx, content, claims[i])
		}(idx)
	}
	wg.Wait()

	if c.validator != nil {
		c.annotateLiveness(ctx, results)
	}

	return results
}

// reuseVerdict matches a claim against the quoted post's completed claims
// by token-overlap similarity and copies the verdict with a remapped id.
func (c *Checker) reuseVerdict(claim model.Claim, reuse *ReuseSource) (model.FactCheck, bool) {
	if reuse == nil || len(reuse.Claims) == 0 {
		return model.FactCheck{}, false
	}

	candidates := make([]string, len(reuse.Claims))
	for i, rc := range reuse.Claims {
		candidates[i] = rc.Text
	}

	idx, score := BestMatch(claim.Text, candidates, c.config.SimilarityFloor)
	if idx < 0 {
		return model.FactCheck{}, false
	}

	source := findFactCheck(reuse.FactChecks, reuse.Claims[idx].ID)
	if source == nil {
		return model.FactCheck{}, false
	}

	fc := *source
	fc.ClaimID = claim.ID
	fc.Evidence = append([]model.Evidence(nil), source.Evidence...)
	fc.Caveats = append([]string(nil), source.Caveats...)
	c.logger.Debug("reused verdict from quoted post",
		"claim_id", claim.ID, "source_claim_id", source.ClaimID, "similarity", score)
	return fc, true
}

func (c *Checker) cachedVerdict(claim model.Claim) (model.FactCheck, bool) {
	if c.verdicts == nil {
		return model.FactCheck{}, false
	}
	raw, found := c.verdicts.Get(cache.Key(NormalizeClaim(claim.Text)))
	if !found {
		return model.FactCheck{}, false
	}
	var fc model.FactCheck
	if err := json.Unmarshal(raw, &fc); err != nil {
		return model.FactCheck{}, false
	}
	fc.ClaimID = claim.ID
	return fc, true
}

func (c *Checker) storeVerdict(claim model.Claim, fc model.FactCheck) {
	if c.verdicts == nil {
		return
	}
	raw, err := json.Marshal(fc)
	if err != nil {
		return
	}
	// Caching is best-effort; a failed write only costs a re-verification.
	if err := c.verdicts.Set(cache.Key(NormalizeClaim(claim.Text)), raw, 0); err != nil {
		c.logger.Debug("verdict cache write failed", "claim_id", claim.ID, "error", err)
	}
}

// checkOne runs the (a) search agent -> (b) structured agent -> (c)
// deterministic fallback chain for a single claim.
func (c *Checker) checkOne(ctx context.Context, content model.Content, claim model.Claim) model.FactCheck {
	metrics.ClaimsChecked.Inc()

	if c.searchAgent != nil {
		fc, err := c.verifyWithSearch(ctx, content, claim)
		if err == nil {
			c.storeVerdict(claim, fc)
			return fc
		}
		if isAuthErr(err) {
			c.logAuthFailure("search agent", claim, err)
			return c.fallbackVerdict(claim, "agent credentials rejected")
		}
		c.logger.Warn("search verification failed, trying structured agent",
			"claim_id", claim.ID, "error", err)
	}

	if c.textAgent != nil {
		fc, err := c.verifyStructured(ctx, content, claim)
		if err == nil {
			c.storeVerdict(claim, fc)
			return fc
		}
		if isAuthErr(err) {
			c.logAuthFailure("structured agent", claim, err)
			return c.fallbackVerdict(claim, "agent credentials rejected")
		}
		c.logger.Warn("structured verification failed, using fallback",
			"claim_id", claim.ID, "error", err)
	}

	return c.fallbackVerdict(claim, fallbackCaveat)
}

func (c *Checker) verifyWithSearch(ctx context.Context, content model.Content, claim model.Claim) (model.FactCheck, error) {
	req := agent.Request{
		Prompt: buildVerifyPrompt(content, claim) +
			"\n\nSearch the web for current evidence and cite the source URL for every evidence item.",
		System: "You are a fact-checker. Verify the claim against reliable sources and answer strictly in JSON.",
		Schema: json.RawMessage(verdictSchema),
	}

	var result *agent.Result
	err := worker.Retry(ctx, c.config.MaxAttempts, c.config.BaseBackoff, func(ctx context.Context) error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx, "search"); err != nil {
				return err
			}
		}
		var callErr error
		result, callErr = c.searchAgent.GenerateWithSearch(ctx, req)
		return callErr
	})
	if err != nil {
		return model.FactCheck{}, err
	}
	return c.parseVerdict(claim, result)
}

func (c *Checker) verifyStructured(ctx context.Context, content model.Content, claim model.Claim) (model.FactCheck, error) {
	req := agent.Request{
		Prompt: buildVerifyPrompt(content, claim) +
			"\n\nUse your existing knowledge. If you cannot verify the claim, return verdict \"unknown\".",
		System: "You are a fact-checker. Verify the claim and answer strictly in JSON.",
		Schema: json.RawMessage(verdictSchema),
	}

	var result *agent.Result
	err := worker.Retry(ctx, c.config.MaxAttempts, c.config.BaseBackoff, func(ctx context.Context) error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx, c.textAgent.Name()); err != nil {
				return err
			}
		}
		var callErr error
		result, callErr = c.textAgent.Generate(ctx, req)
		return callErr
	})
	if err != nil {
		return model.FactCheck{}, err
	}
	return c.parseVerdict(claim, result)
}

func (c *Checker) parseVerdict(claim model.Claim, result *agent.Result) (model.FactCheck, error) {
	var parsed struct {
		Verdict    string  `json:"verdict"`
		Confidence float64 `json:"confidence"`
		Evidence   []struct {
			Source  string `json:"source"`
			URL     string `json:"url"`
			Snippet string `json:"snippet"`
		} `json:"evidence"`
		Caveats []string `json:"caveats"`
	}
	if err := result.Decode(&parsed); err != nil {
		return model.FactCheck{}, err
	}

	verdict := parseVerdictString(parsed.Verdict)
	evidence := make([]model.Evidence, 0, len(parsed.Evidence))
	for _, e := range parsed.Evidence {
		evidence = append(evidence, model.Evidence{
			Source:  e.Source,
			URL:     e.URL,
			Snippet: e.Snippet,
		})
	}

	return model.FactCheck{
		ClaimID:    claim.ID,
		Verdict:    verdict,
		Confidence: clamp01(parsed.Confidence),
		Evidence:   c.trust.Rescore(evidence),
		Caveats:    parsed.Caveats,
		CheckedAt:  c.nowFunc().UTC(),
	}, nil
}

// fallbackVerdict is the deterministic last resort: unknown at fixed low
// confidence with an explanatory caveat.
func (c *Checker) fallbackVerdict(claim model.Claim, caveat string) model.FactCheck {
	metrics.VerificationFallbacks.Inc()
	return model.FactCheck{
		ClaimID:    claim.ID,
		Verdict:    model.VerdictUnknown,
		Confidence: fallbackConfidence,
		Caveats:    []string{caveat},
		CheckedAt:  c.nowFunc().UTC(),
	}
}

func (c *Checker) annotateLiveness(ctx context.Context, checks []model.FactCheck) {
	var all []*model.Evidence
	for i := range checks {
		for j := range checks[i].Evidence {
			if checks[i].Evidence[j].URL != "" {
				all = append(all, &checks[i].Evidence[j])
			}
		}
	}
	c.validator.Annotate(ctx, all)
}

func (c *Checker) logAuthFailure(stage string, claim model.Claim, err error) {
	metrics.AuthFailures.Inc()
	// Loud and distinct: this is an operational incident, not a per-item
	// failure, and must never be retried.
	c.logger.Error("agent authentication failure",
		"fatal", true, "stage", stage, "claim_id", claim.ID, "error", err)
}

func buildVerifyPrompt(content model.Content, claim model.Claim) string {
	var b strings.Builder
	b.WriteString("Fact-check this claim extracted from a social media post.\n\n")
	fmt.Fprintf(&b, "Claim: %s\n", claim.Text)
	fmt.Fprintf(&b, "Domain: %s  Risk: %s\n\n", claim.Domain, claim.Risk)
	if body := strings.TrimSpace(content.Body()); body != "" {
		fmt.Fprintf(&b, "Full post for context:\n%s\n", body)
	}
	return b.String()
}

func parseVerdictString(s string) model.Verdict {
	switch model.Verdict(strings.ToLower(strings.TrimSpace(s))) {
	case model.VerdictTrue:
		return model.VerdictTrue
	case model.VerdictFalse:
		return model.VerdictFalse
	case model.VerdictMixed:
		return model.VerdictMixed
	default:
		return model.VerdictUnknown
	}
}

func findFactCheck(checks []model.FactCheck, claimID string) *model.FactCheck {
	for i := range checks {
		if checks[i].ClaimID == claimID {
			return &checks[i]
		}
	}
	return nil
}

func isAuthErr(err error) bool {
	return errors.Is(err, agent.ErrAuthentication)
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
