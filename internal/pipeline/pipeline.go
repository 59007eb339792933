// Package pipeline orchestrates the trust and value stages for posts and
// comments. Progress is persisted after every stage so a crash resumes from
// the last completed sub-step instead of starting over, and each stage
// fails in isolation: a failed stage leaves its insights field absent and
// the run keeps going with whatever the earlier stages produced.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/veracity-social/veracity/internal/docstore"
	"github.com/veracity-social/veracity/internal/extract"
	"github.com/veracity-social/veracity/internal/factcheck"
	"github.com/veracity-social/veracity/internal/ledger"
	"github.com/veracity-social/veracity/internal/metrics"
	"github.com/veracity-social/veracity/internal/model"
	"github.com/veracity-social/veracity/internal/policy"
	"github.com/veracity-social/veracity/internal/store"
	"github.com/veracity-social/veracity/internal/thread"
	"github.com/veracity-social/veracity/internal/triage"
	"github.com/veracity-social/veracity/internal/trust"
	"github.com/veracity-social/veracity/internal/value"
	"github.com/veracity-social/veracity/internal/worker"
)

// ErrOriginalNotFound is returned when a share references a missing post.
var ErrOriginalNotFound = errors.New("original post not found")

// Deps are the orchestrator's collaborators. Triage, Checker, Scorer and
// Analyzer degrade gracefully when their agents are absent; Store, Ledger,
// Trust and Threads are required.
type Deps struct {
	Store    *store.Store
	Triage   *triage.Triage
	Extract  *extract.Extractor
	Checker  *factcheck.Checker
	Scorer   value.Scorer
	Analyzer value.DiscussionAnalyzer
	Ledger   *ledger.Ledger
	Trust    *trust.Engine
	Threads  *thread.Threads
}

// Orchestrator runs content through the full trust and value pipeline.
type Orchestrator struct {
	deps    Deps
	config  *model.Config
	logger  *slog.Logger
	nowFunc func() time.Time
}

// New creates an orchestrator.
func New(deps Deps, config *model.Config, logger *slog.Logger) *Orchestrator {
	if config == nil {
		config = model.DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{deps: deps, config: config, logger: logger, nowFunc: time.Now}
}

// IngestPost stores a new post and runs it through the pipeline. Shares of
// an original that is still being processed are parked pending and picked
// up by SyncShares when the original completes.
func (o *Orchestrator) IngestPost(ctx context.Context, post *model.Post) error {
	if post.CreatedAt.IsZero() {
		post.CreatedAt = o.nowFunc().UTC()
	}
	post.Insights = model.Insights{ProcessingStatus: model.StatusPending}

	if post.IsShare() {
		original, err := o.deps.Store.GetPost(post.OriginalID())
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrOriginalNotFound, post.OriginalID())
		}
		if err != nil {
			return fmt.Errorf("load original: %w", err)
		}
		if err := o.deps.Store.CreatePost(post); err != nil {
			return fmt.Errorf("create post: %w", err)
		}
		if !isCompleted(&original.Insights) {
			// Park until the original's run finishes; SyncShares resumes us.
			o.logger.Info("share parked pending original",
				"post_id", post.ID, "original_id", original.ID)
			return nil
		}
		return o.processShare(ctx, post, original)
	}

	if err := o.deps.Store.CreatePost(post); err != nil {
		return fmt.Errorf("create post: %w", err)
	}
	return o.Process(ctx, post)
}

// IngestComment validates the reply position, stores the comment, runs it
// through the pipeline, and refreshes the parent post's discussion quality.
func (o *Orchestrator) IngestComment(ctx context.Context, comment *model.Comment) error {
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = o.nowFunc().UTC()
	}
	if _, err := o.deps.Store.GetPost(comment.PostID); err != nil {
		return fmt.Errorf("load post: %w", err)
	}
	if err := o.deps.Threads.ValidateReply(comment); err != nil {
		return err
	}
	comment.Insights = model.Insights{ProcessingStatus: model.StatusPending}
	if err := o.deps.Store.CreateComment(comment); err != nil {
		return fmt.Errorf("create comment: %w", err)
	}
	return o.Process(ctx, comment)
}

// Process runs one unit of content through the pipeline state machine:
// triage, claim extraction, verification, policy, value scoring, then
// ledger and trust side effects. Every sub-step persists before the next
// one starts.
func (o *Orchestrator) Process(ctx context.Context, content model.Content) error {
	return o.process(ctx, content, nil)
}

func (o *Orchestrator) process(ctx context.Context, content model.Content, reuse *factcheck.ReuseSource) error {
	start := o.nowFunc()
	log := o.logger.With("content_id", content.ContentID())

	startedAt := start.UTC()
	if err := o.deps.Store.PatchInsights(content, docstore.Patch{
		"processing_status":     string(model.StatusInProgress),
		"processing_started_at": startedAt,
	}); err != nil {
		metrics.PipelineRuns.WithLabelValues("failed").Inc()
		return fmt.Errorf("mark in progress: %w", err)
	}

	var (
		decision   model.PolicyDecision
		score      *model.ValueScore
		discussion *model.DiscussionQuality
	)

	// Reprocessing resumes on top of whatever an earlier run persisted;
	// claims and verdicts are only ever added to, never replaced.
	prior, err := o.loadInsights(content)
	if err != nil {
		return o.fail(content, log, fmt.Errorf("load insights: %w", err))
	}
	claims := prior.Claims
	checks := prior.FactChecks

	// Triage: decide whether the verification stages run at all. A quote is
	// triaged on the combined unit; bland commentary on risky quoted content
	// must not dodge verification.
	quoted := quotedContent(o, content)
	ti := triage.Input{Text: content.Body(), ImageRef: content.ImageRef()}
	if quoted != nil {
		ti.Text = strings.TrimSpace(ti.Text + "\n" + quoted.Body())
		if ti.ImageRef == "" {
			ti.ImageRef = quoted.ImageRef()
		}
	}
	td := o.deps.Triage.Assess(ctx, ti)
	log.Info("triage decision",
		"needs_verification", td.NeedsVerification, "risk", td.Risk, "reason", td.Reason)

	if td.NeedsVerification {
		extracted, err := o.deps.Extract.Extract(ctx, extract.Input{Content: content, Quoted: quoted})
		if err != nil {
			o.stageFailed(log, "extract", err)
		} else {
			claims = mergeClaims(content.ContentID(), claims, extracted)
			if err := o.deps.Store.PatchInsights(content, docstore.Patch{"claims": claims}); err != nil {
				return o.fail(content, log, fmt.Errorf("persist claims: %w", err))
			}
		}

		// Only claims without a persisted verdict go through the chain.
		fresh := o.deps.Checker.CheckAll(ctx, content, uncheckedClaims(claims, checks), reuse)
		checks = append(append([]model.FactCheck{}, checks...), fresh...)
		if err := o.deps.Store.PatchInsights(content, docstore.Patch{"fact_checks": checks}); err != nil {
			return o.fail(content, log, fmt.Errorf("persist fact checks: %w", err))
		}
	}

	decision = policy.Evaluate(claims, checks)
	if err := o.deps.Store.PatchInsights(content, docstore.Patch{
		"fact_check_status": string(decision.Status),
	}); err != nil {
		return o.fail(content, log, fmt.Errorf("persist policy status: %w", err))
	}
	if decision.EscalateToHuman {
		log.Warn("content escalated for human review", "reasons", decision.Reasons)
	}

	// Value scoring runs even for triage-skipped content; opinion posts
	// still carry contribution value.
	if o.deps.Scorer != nil {
		var explanation string
		var err error
		score, explanation, err = o.deps.Scorer.Score(ctx, content, claims, checks)
		if err != nil {
			o.stageFailed(log, "value", err)
		} else if score != nil {
			if err := o.deps.Store.PatchInsights(content, docstore.Patch{
				"value_score":       score,
				"value_explanation": explanation,
			}); err != nil {
				return o.fail(content, log, fmt.Errorf("persist value score: %w", err))
			}
		}
	}

	discussion = o.refreshDiscussion(ctx, content, log)

	// Clear the status fields entirely; absence means done.
	if err := o.deps.Store.PatchInsights(content, docstore.Patch{
		"processing_status":     docstore.Delete,
		"processing_started_at": docstore.Delete,
	}); err != nil {
		return o.fail(content, log, fmt.Errorf("clear status: %w", err))
	}

	o.sideEffects(content, claims, &decision, score, discussion)

	metrics.PipelineRuns.WithLabelValues("completed").Inc()
	metrics.PipelineDuration.Observe(o.nowFunc().Sub(start).Seconds())
	log.Info("pipeline completed",
		"claims", len(claims), "status", decision.Status, "duration", o.nowFunc().Sub(start))

	if post, ok := content.(*model.Post); ok && !post.IsShare() {
		o.SyncShares(ctx, post.ID)
	}
	return nil
}

// processShare handles reposts and quotes of a completed original. A pure
// repost inherits the original's verification wholesale with zero agent
// calls; a quote runs the pipeline over its own text, reusing verdicts for
// claims matching the original's.
func (o *Orchestrator) processShare(ctx context.Context, post *model.Post, original *model.Post) error {
	if post.RepostOf != "" {
		return o.inheritInsights(post, original)
	}
	reuse := &factcheck.ReuseSource{
		Claims:     original.Insights.Claims,
		FactChecks: original.Insights.FactChecks,
	}
	return o.process(ctx, post, reuse)
}

// inheritInsights copies the original's verification results onto a repost,
// remapping claim ids to the repost. Reposts add no content of their own,
// so they produce no ledger or trust side effects.
func (o *Orchestrator) inheritInsights(post *model.Post, original *model.Post) error {
	idMap := make(map[string]string, len(original.Insights.Claims))
	claims := make([]model.Claim, len(original.Insights.Claims))
	for i, cl := range original.Insights.Claims {
		mapped := fmt.Sprintf("%s-c%d", post.ID, i)
		idMap[cl.ID] = mapped
		cl.ID = mapped
		claims[i] = cl
	}
	checks := make([]model.FactCheck, len(original.Insights.FactChecks))
	for i, fc := range original.Insights.FactChecks {
		if mapped, ok := idMap[fc.ClaimID]; ok {
			fc.ClaimID = mapped
		}
		checks[i] = fc
	}

	patch := docstore.Patch{
		"fact_check_status":     string(original.Insights.FactCheckStatus),
		"processing_status":     docstore.Delete,
		"processing_started_at": docstore.Delete,
	}
	if len(claims) > 0 {
		patch["claims"] = claims
	}
	if len(checks) > 0 {
		patch["fact_checks"] = checks
	}
	if err := o.deps.Store.PatchPostInsights(post.ID, patch); err != nil {
		metrics.PipelineRuns.WithLabelValues("failed").Inc()
		return fmt.Errorf("inherit insights: %w", err)
	}

	metrics.PipelineRuns.WithLabelValues("inherited").Inc()
	o.logger.Info("repost inherited verification",
		"post_id", post.ID, "original_id", original.ID, "claims", len(claims))
	return nil
}

// SyncShares finds shares parked pending on the given original and runs
// them now. Each share fails independently.
func (o *Orchestrator) SyncShares(ctx context.Context, originalID string) {
	shares, err := o.deps.Store.ListSharesOf(originalID)
	if err != nil {
		o.logger.Warn("share sync lookup failed", "original_id", originalID, "error", err)
		return
	}
	var pending []*model.Post
	for _, share := range shares {
		if share.Insights.ProcessingStatus == model.StatusPending {
			pending = append(pending, share)
		}
	}
	if len(pending) == 0 {
		return
	}

	original, err := o.deps.Store.GetPost(originalID)
	if err != nil {
		o.logger.Warn("share sync original load failed", "original_id", originalID, "error", err)
		return
	}

	pool := worker.NewPool(o.config.Sweep.Concurrency)
	pool.Start()
	for _, share := range pending {
		pool.Submit(&shareJob{orch: o, share: share, original: original})
	}
	for _, res := range pool.Wait() {
		if err := res.GetError(); err != nil {
			o.logger.Warn("share sync item failed", "original_id", originalID, "error", err)
		}
	}
}

// refreshDiscussion recomputes discussion quality for the relevant post's
// thread. For a comment that is the parent post; the result is persisted on
// the post either way.
func (o *Orchestrator) refreshDiscussion(ctx context.Context, content model.Content, log *slog.Logger) *model.DiscussionQuality {
	if o.deps.Analyzer == nil {
		return nil
	}

	var post *model.Post
	switch c := content.(type) {
	case *model.Post:
		post = c
	case *model.Comment:
		loaded, err := o.deps.Store.GetPost(c.PostID)
		if err != nil {
			o.stageFailed(log, "discussion", err)
			return nil
		}
		post = loaded
	default:
		return nil
	}

	comments, err := o.deps.Store.ListCommentsByPost(post.ID)
	if err != nil {
		o.stageFailed(log, "discussion", err)
		return nil
	}
	if len(comments) == 0 {
		return nil
	}

	dq, err := o.deps.Analyzer.Analyze(ctx, post, comments)
	if err != nil {
		o.stageFailed(log, "discussion", err)
		return nil
	}
	if dq == nil {
		return nil
	}
	if err := o.deps.Store.PatchPostInsights(post.ID, docstore.Patch{"discussion_quality": dq}); err != nil {
		o.stageFailed(log, "discussion", err)
		return nil
	}
	return dq
}

// sideEffects records the ledger contribution and updates the author's
// trust score. Failures here are logged and counted, never fatal: the
// content's own pipeline result is already persisted.
func (o *Orchestrator) sideEffects(content model.Content, claims []model.Claim, decision *model.PolicyDecision, score *model.ValueScore, discussion *model.DiscussionQuality) {
	author := content.AuthorID()
	log := o.logger.With("content_id", content.ContentID(), "user_id", author)

	typ := model.ContributionPost
	reason := "post scored"
	if _, ok := content.(*model.Comment); ok {
		typ = model.ContributionComment
		reason = "comment scored"
	}

	var aggregates *ledger.Aggregates
	if score != nil {
		if _, err := o.deps.Ledger.Record(author, typ, score.Total, dominantDomain(claims), content.ContentID()); err != nil {
			metrics.SideEffectFailures.WithLabelValues("ledger").Inc()
			log.Warn("ledger record failed", "error", err)
		}
		agg, err := o.deps.Ledger.Aggregates(author)
		if err != nil {
			metrics.SideEffectFailures.WithLabelValues("ledger").Inc()
			log.Warn("ledger aggregate failed", "error", err)
		} else {
			aggregates = agg
		}
	}

	if _, err := o.deps.Trust.Update(author, trust.Signals{
		Value:      score,
		Policy:     decision,
		Discussion: discussion,
		Aggregates: aggregates,
		Reason:     reason,
	}); err != nil {
		metrics.SideEffectFailures.WithLabelValues("trust").Inc()
		log.Warn("trust update failed", "error", err)
	}
}

func (o *Orchestrator) stageFailed(log *slog.Logger, stage string, err error) {
	metrics.StageFailures.WithLabelValues(stage).Inc()
	log.Warn("stage failed, continuing", "stage", stage, "error", err)
}

// fail marks the content failed and returns the original error. The failed
// status keeps the unit visible to the retry sweep.
func (o *Orchestrator) fail(content model.Content, log *slog.Logger, err error) error {
	metrics.PipelineRuns.WithLabelValues("failed").Inc()
	log.Error("pipeline failed", "error", err)
	if patchErr := o.deps.Store.PatchInsights(content, docstore.Patch{
		"processing_status": string(model.StatusFailed),
	}); patchErr != nil {
		log.Error("failed to mark content failed", "error", patchErr)
	}
	return err
}

// loadInsights reloads the persisted insights so reprocessing builds on the
// earlier run's output rather than a possibly stale in-memory copy.
func (o *Orchestrator) loadInsights(content model.Content) (model.Insights, error) {
	switch c := content.(type) {
	case *model.Post:
		p, err := o.deps.Store.GetPost(c.ID)
		if err != nil {
			return model.Insights{}, err
		}
		return p.Insights, nil
	case *model.Comment:
		cm, err := o.deps.Store.GetComment(c.ID)
		if err != nil {
			return model.Insights{}, err
		}
		return cm.Insights, nil
	default:
		return model.Insights{}, errors.New("unknown content type")
	}
}

// mergeClaims appends newly extracted claims to the persisted list. Existing
// claims keep their ids; an extracted claim whose normalized text already
// appears is the same claim seen again, not a new one.
func mergeClaims(parentID string, existing, extracted []model.Claim) []model.Claim {
	merged := append([]model.Claim{}, existing...)
	seen := make(map[string]bool, len(existing))
	for _, cl := range existing {
		seen[factcheck.NormalizeClaim(cl.Text)] = true
	}
	for _, cl := range extracted {
		norm := factcheck.NormalizeClaim(cl.Text)
		if seen[norm] {
			continue
		}
		seen[norm] = true
		cl.ID = fmt.Sprintf("%s-c%d", parentID, len(merged))
		merged = append(merged, cl)
	}
	return merged
}

// uncheckedClaims returns the claims that have no persisted verdict yet.
func uncheckedClaims(claims []model.Claim, checks []model.FactCheck) []model.Claim {
	checked := make(map[string]bool, len(checks))
	for _, fc := range checks {
		checked[fc.ClaimID] = true
	}
	var out []model.Claim
	for _, cl := range claims {
		if !checked[cl.ID] {
			out = append(out, cl)
		}
	}
	return out
}

// quotedContent loads the quoted original for extraction context. Pure
// reposts never reach here; they inherit instead of processing.
func quotedContent(o *Orchestrator, content model.Content) model.Content {
	post, ok := content.(*model.Post)
	if !ok || post.QuoteOf == "" {
		return nil
	}
	original, err := o.deps.Store.GetPost(post.QuoteOf)
	if err != nil {
		return nil
	}
	return original
}

// dominantDomain picks the most frequent claim domain for ledger rows.
func dominantDomain(claims []model.Claim) model.ClaimDomain {
	if len(claims) == 0 {
		return model.DomainGeneral
	}
	counts := make(map[model.ClaimDomain]int, len(claims))
	best := claims[0].Domain
	for _, cl := range claims {
		counts[cl.Domain]++
		if counts[cl.Domain] > counts[best] {
			best = cl.Domain
		}
	}
	return best
}

func isCompleted(ins *model.Insights) bool {
	return ins.ProcessingStatus == "" && (len(ins.Claims) > 0 || ins.FactCheckStatus != "")
}

// shareJob runs one parked share through the pipeline inside the sync pool.
type shareJob struct {
	orch     *Orchestrator
	share    *model.Post
	original *model.Post
}

type shareResult struct{ err error }

func (r shareResult) GetError() error { return r.err }

func (j *shareJob) Execute(ctx context.Context) worker.Result {
	return shareResult{err: j.orch.processShare(ctx, j.share, j.original)}
}
