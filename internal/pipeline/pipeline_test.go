package pipeline

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/veracity-social/veracity/internal/docstore"
	"github.com/veracity-social/veracity/internal/extract"
	"github.com/veracity-social/veracity/internal/factcheck"
	"github.com/veracity-social/veracity/internal/ledger"
	"github.com/veracity-social/veracity/internal/model"
	"github.com/veracity-social/veracity/internal/store"
	"github.com/veracity-social/veracity/internal/thread"
	"github.com/veracity-social/veracity/internal/triage"
	"github.com/veracity-social/veracity/internal/trust"
	"github.com/veracity-social/veracity/internal/value"
)

// riskyText lands above the skip threshold so the verification stages run.
const riskyText = "According to the report, output rose by 12% in the period under review"

type fakeScorer struct {
	calls int
	total float64
	err   error
}

func (f *fakeScorer) Score(ctx context.Context, content model.Content, claims []model.Claim, checks []model.FactCheck) (*model.ValueScore, string, error) {
	f.calls++
	if f.err != nil {
		return nil, "", f.err
	}
	return &model.ValueScore{
		Epistemic: f.total, Total: f.total, Confidence: 0.8,
		UpdatedAt: time.Now().UTC(),
	}, "test explanation", nil
}

type fakeAnalyzer struct {
	calls int
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, post *model.Post, comments []*model.Comment) (*model.DiscussionQuality, error) {
	f.calls++
	if len(comments) == 0 {
		return nil, nil
	}
	return &model.DiscussionQuality{Constructiveness: 0.7, Civility: 0.8, Depth: 0.5, UpdatedAt: time.Now().UTC()}, nil
}

type env struct {
	orch     *Orchestrator
	store    *store.Store
	scorer   *fakeScorer
	analyzer *fakeAnalyzer
	cfg      *model.Config
}

// newTestEnv wires a fully deterministic pipeline: no agents anywhere, so
// every stage takes its fallback path.
func newTestEnv(t *testing.T) *env {
	t.Helper()

	st := store.New(docstore.NewMemoryStore())
	cfg := model.DefaultConfig()
	cfg.Triage.UseGate = false
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	scorer := &fakeScorer{total: 0.6}
	analyzer := &fakeAnalyzer{}

	deps := Deps{
		Store:    st,
		Triage:   triage.New(nil, cfg.Triage, log),
		Extract:  extract.New(nil, cfg.Extract, log),
		Checker:  factcheck.New(nil, nil, nil, nil, cfg.Verify, log),
		Scorer:   scorer,
		Analyzer: analyzer,
		Ledger:   ledger.New(st, cfg.Ledger.WindowDays, log),
		Trust:    trust.New(st, cfg.Trust, log),
		Threads:  thread.New(st, cfg.Comments.MaxDepth),
	}

	return &env{
		orch:     New(deps, cfg, log),
		store:    st,
		scorer:   scorer,
		analyzer: analyzer,
		cfg:      cfg,
	}
}

var _ value.Scorer = (*fakeScorer)(nil)
var _ value.DiscussionAnalyzer = (*fakeAnalyzer)(nil)

func TestIngestPost_FullRun(t *testing.T) {
	e := newTestEnv(t)

	post := &model.Post{ID: "p1", Author: "u1", Text: riskyText}
	if err := e.orch.IngestPost(context.Background(), post); err != nil {
		t.Fatalf("IngestPost failed: %v", err)
	}

	got, err := e.store.GetPost("p1")
	if err != nil {
		t.Fatalf("GetPost failed: %v", err)
	}

	if got.Insights.ProcessingStatus != "" {
		t.Errorf("Completed post must have no status field, got %q", got.Insights.ProcessingStatus)
	}
	if got.Insights.ProcessingStartedAt != nil {
		t.Error("processing_started_at must be cleared on completion")
	}
	if len(got.Insights.Claims) == 0 {
		t.Error("Risky text must produce claims")
	}
	if len(got.Insights.FactChecks) != len(got.Insights.Claims) {
		t.Errorf("Expected one fact check per claim: %d vs %d",
			len(got.Insights.FactChecks), len(got.Insights.Claims))
	}
	// No agents: every verdict is the deterministic unknown fallback, so
	// policy lands on needs_review.
	if got.Insights.FactCheckStatus != model.PolicyNeedsReview {
		t.Errorf("Expected needs_review, got %s", got.Insights.FactCheckStatus)
	}
	if got.Insights.ValueScore == nil || got.Insights.ValueScore.Total != 0.6 {
		t.Errorf("Value score missing or wrong: %+v", got.Insights.ValueScore)
	}
	if got.Insights.ValueExplanation != "test explanation" {
		t.Errorf("Value explanation missing: %q", got.Insights.ValueExplanation)
	}

	// Side effects: one ledger row and a trust score for the author.
	rows, _ := e.store.ListContributions("u1", time.Time{})
	if len(rows) != 1 || rows[0].SourceID != "p1" {
		t.Errorf("Expected one ledger row for the post, got %+v", rows)
	}
	ts, _ := e.store.GetTrustScore("u1")
	if ts == nil {
		t.Fatal("Trust score missing after pipeline run")
	}
	if len(ts.History) != 1 {
		t.Errorf("Expected one trust event, got %d", len(ts.History))
	}
}

func TestIngestPost_TriageSkipStillScoresValue(t *testing.T) {
	e := newTestEnv(t)

	post := &model.Post{ID: "p1", Author: "u1", Text: "nice day today"}
	if err := e.orch.IngestPost(context.Background(), post); err != nil {
		t.Fatalf("IngestPost failed: %v", err)
	}

	got, _ := e.store.GetPost("p1")
	if len(got.Insights.Claims) != 0 {
		t.Errorf("Skipped content must have no claims, got %d", len(got.Insights.Claims))
	}
	if got.Insights.FactCheckStatus != model.PolicyClean {
		t.Errorf("Skipped content must be clean, got %s", got.Insights.FactCheckStatus)
	}
	if got.Insights.ValueScore == nil {
		t.Error("Value scoring must run even when verification is skipped")
	}
}

func TestIngestPost_ValueFailureIsolated(t *testing.T) {
	e := newTestEnv(t)
	e.scorer.err = context.DeadlineExceeded

	post := &model.Post{ID: "p1", Author: "u1", Text: riskyText}
	if err := e.orch.IngestPost(context.Background(), post); err != nil {
		t.Fatalf("Value stage failure must not fail the run: %v", err)
	}

	got, _ := e.store.GetPost("p1")
	if got.Insights.ProcessingStatus != "" {
		t.Errorf("Run must complete despite value failure, got status %q", got.Insights.ProcessingStatus)
	}
	if got.Insights.ValueScore != nil {
		t.Error("Failed value stage must leave its field absent")
	}
	if len(got.Insights.Claims) == 0 {
		t.Error("Earlier stage output must survive the later failure")
	}
}

func TestIngestPost_RepostInheritsWithZeroAgentWork(t *testing.T) {
	e := newTestEnv(t)

	original := &model.Post{ID: "orig", Author: "u1", Text: riskyText}
	if err := e.orch.IngestPost(context.Background(), original); err != nil {
		t.Fatalf("IngestPost(original) failed: %v", err)
	}
	scorerCallsBefore := e.scorer.calls

	repost := &model.Post{ID: "r1", Author: "u2", RepostOf: "orig"}
	if err := e.orch.IngestPost(context.Background(), repost); err != nil {
		t.Fatalf("IngestPost(repost) failed: %v", err)
	}

	if e.scorer.calls != scorerCallsBefore {
		t.Errorf("Repost must not re-run any scoring stage: %d extra calls",
			e.scorer.calls-scorerCallsBefore)
	}

	got, _ := e.store.GetPost("r1")
	orig, _ := e.store.GetPost("orig")

	if got.Insights.ProcessingStatus != "" {
		t.Errorf("Repost must complete, got status %q", got.Insights.ProcessingStatus)
	}
	if len(got.Insights.Claims) != len(orig.Insights.Claims) {
		t.Errorf("Repost must inherit all claims: %d vs %d",
			len(got.Insights.Claims), len(orig.Insights.Claims))
	}
	if got.Insights.FactCheckStatus != orig.Insights.FactCheckStatus {
		t.Errorf("Repost must inherit the policy status: %s vs %s",
			got.Insights.FactCheckStatus, orig.Insights.FactCheckStatus)
	}
	// Claim ids are remapped to the repost, and fact checks follow.
	for i, cl := range got.Insights.Claims {
		if cl.ID == orig.Insights.Claims[i].ID {
			t.Errorf("Claim id %s not remapped", cl.ID)
		}
		if got.Insights.FactChecks[i].ClaimID != cl.ID {
			t.Errorf("Fact check %d bound to %s, want %s",
				i, got.Insights.FactChecks[i].ClaimID, cl.ID)
		}
	}

	// Reposting is not a contribution.
	rows, _ := e.store.ListContributions("u2", time.Time{})
	if len(rows) != 0 {
		t.Errorf("Repost must not earn ledger credit, got %+v", rows)
	}
}

func TestIngestPost_ShareOfMissingOriginalRejected(t *testing.T) {
	e := newTestEnv(t)

	repost := &model.Post{ID: "r1", Author: "u2", RepostOf: "ghost"}
	err := e.orch.IngestPost(context.Background(), repost)
	if err == nil {
		t.Fatal("Share of a missing original must be rejected")
	}
}

func TestIngestPost_ShareParkedUntilOriginalCompletes(t *testing.T) {
	e := newTestEnv(t)

	// Original exists but its run has not finished.
	original := &model.Post{ID: "orig", Author: "u1", Text: riskyText, CreatedAt: time.Now().UTC()}
	original.Insights.ProcessingStatus = model.StatusInProgress
	if err := e.store.CreatePost(original); err != nil {
		t.Fatalf("CreatePost failed: %v", err)
	}

	repost := &model.Post{ID: "r1", Author: "u2", RepostOf: "orig"}
	if err := e.orch.IngestPost(context.Background(), repost); err != nil {
		t.Fatalf("IngestPost(repost) failed: %v", err)
	}

	parked, _ := e.store.GetPost("r1")
	if parked.Insights.ProcessingStatus != model.StatusPending {
		t.Fatalf("Share of an in-flight original must park pending, got %q",
			parked.Insights.ProcessingStatus)
	}

	// Finishing the original syncs parked shares.
	if err := e.orch.Process(context.Background(), original); err != nil {
		t.Fatalf("Process(original) failed: %v", err)
	}

	synced, _ := e.store.GetPost("r1")
	if synced.Insights.ProcessingStatus != "" {
		t.Errorf("Parked share must complete after the original does, got %q",
			synced.Insights.ProcessingStatus)
	}
	if len(synced.Insights.Claims) == 0 {
		t.Error("Synced share must carry the inherited claims")
	}
}

func TestIngestPost_QuoteReusesVerdicts(t *testing.T) {
	e := newTestEnv(t)

	original := &model.Post{ID: "orig", Author: "u1", Text: riskyText}
	if err := e.orch.IngestPost(context.Background(), original); err != nil {
		t.Fatalf("IngestPost(original) failed: %v", err)
	}

	quote := &model.Post{ID: "q1", Author: "u2", Text: "This matches what I have seen.", QuoteOf: "orig"}
	if err := e.orch.IngestPost(context.Background(), quote); err != nil {
		t.Fatalf("IngestPost(quote) failed: %v", err)
	}

	got, _ := e.store.GetPost("q1")
	if got.Insights.ProcessingStatus != "" {
		t.Errorf("Quote must complete, got status %q", got.Insights.ProcessingStatus)
	}
	// The quote runs its own pipeline: own claims, own value score. Triage
	// sees the combined unit, so bland commentary on risky quoted content
	// still lands in verification.
	if len(got.Insights.Claims) == 0 {
		t.Error("Quote must extract claims from its own and quoted text")
	}
	if got.Insights.FactCheckStatus != model.PolicyNeedsReview {
		t.Errorf("Quote of risky content must be verified, got %s", got.Insights.FactCheckStatus)
	}
	if got.Insights.ValueScore == nil {
		t.Error("Quote must be value-scored as its own contribution")
	}
	rows, _ := e.store.ListContributions("u2", time.Time{})
	if len(rows) != 1 {
		t.Errorf("Quote must earn ledger credit, got %d rows", len(rows))
	}
}

func TestProcess_ReprocessingPreservesEarlierClaims(t *testing.T) {
	e := newTestEnv(t)

	post := &model.Post{ID: "p1", Author: "u1", Text: "Study shows result variant 1 in 2023"}
	if err := e.orch.IngestPost(context.Background(), post); err != nil {
		t.Fatalf("IngestPost failed: %v", err)
	}
	first, _ := e.store.GetPost("p1")
	if len(first.Insights.Claims) == 0 {
		t.Fatal("First run must produce claims")
	}

	// The author edits the post; reprocessing must add the new claim
	// without dropping the already-verified one.
	post.Text = "Study shows result variant 2 in 2023"
	if err := e.orch.Process(context.Background(), post); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	got, _ := e.store.GetPost("p1")
	if len(got.Insights.Claims) != len(first.Insights.Claims)+1 {
		t.Fatalf("Expected %d claims after reprocessing, got %d",
			len(first.Insights.Claims)+1, len(got.Insights.Claims))
	}
	if got.Insights.Claims[0].ID != first.Insights.Claims[0].ID ||
		got.Insights.Claims[0].Text != first.Insights.Claims[0].Text {
		t.Errorf("Earlier claim must survive reprocessing unchanged: %+v", got.Insights.Claims[0])
	}
	if len(got.Insights.FactChecks) != len(got.Insights.Claims) {
		t.Errorf("Every claim must keep a verdict: %d checks for %d claims",
			len(got.Insights.FactChecks), len(got.Insights.Claims))
	}

	// Reprocessing with unchanged text adds nothing.
	if err := e.orch.Process(context.Background(), post); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	again, _ := e.store.GetPost("p1")
	if len(again.Insights.Claims) != len(got.Insights.Claims) {
		t.Errorf("Re-extracted claims must not duplicate: %d vs %d",
			len(again.Insights.Claims), len(got.Insights.Claims))
	}
	if len(again.Insights.FactChecks) != len(got.Insights.FactChecks) {
		t.Errorf("Verdicts must not duplicate: %d vs %d",
			len(again.Insights.FactChecks), len(got.Insights.FactChecks))
	}
}

func TestIngestComment_FullRun(t *testing.T) {
	e := newTestEnv(t)

	post := &model.Post{ID: "p1", Author: "u1", Text: "nice day today"}
	if err := e.orch.IngestPost(context.Background(), post); err != nil {
		t.Fatalf("IngestPost failed: %v", err)
	}

	comment := &model.Comment{ID: "c1", PostID: "p1", Author: "u2", Text: riskyText}
	if err := e.orch.IngestComment(context.Background(), comment); err != nil {
		t.Fatalf("IngestComment failed: %v", err)
	}

	got, _ := e.store.GetComment("c1")
	if got.Insights.ProcessingStatus != "" {
		t.Errorf("Comment must complete, got status %q", got.Insights.ProcessingStatus)
	}
	if len(got.Insights.Claims) == 0 {
		t.Error("Risky comment text must produce claims")
	}

	// The parent post's discussion quality refreshes on comment activity.
	parent, _ := e.store.GetPost("p1")
	if parent.Insights.DiscussionQuality == nil {
		t.Error("Parent post discussion quality must be refreshed")
	}

	rows, _ := e.store.ListContributions("u2", time.Time{})
	if len(rows) != 1 || rows[0].Type != model.ContributionComment {
		t.Errorf("Expected one comment contribution, got %+v", rows)
	}
}

func TestIngestComment_DepthLimit(t *testing.T) {
	e := newTestEnv(t)
	e.cfg.Comments.MaxDepth = 2

	// Rebuild threads with the tighter limit.
	e.orch.deps.Threads = thread.New(e.store, 2)

	post := &model.Post{ID: "p1", Author: "u1", Text: "root"}
	if err := e.orch.IngestPost(context.Background(), post); err != nil {
		t.Fatalf("IngestPost failed: %v", err)
	}

	c1 := &model.Comment{ID: "c1", PostID: "p1", Author: "u2", Text: "top level"}
	if err := e.orch.IngestComment(context.Background(), c1); err != nil {
		t.Fatalf("IngestComment(c1) failed: %v", err)
	}
	c2 := &model.Comment{ID: "c2", PostID: "p1", ParentID: "c1", Author: "u3", Text: "a reply"}
	if err := e.orch.IngestComment(context.Background(), c2); err != nil {
		t.Fatalf("IngestComment(c2) failed: %v", err)
	}

	c3 := &model.Comment{ID: "c3", PostID: "p1", ParentID: "c2", Author: "u4", Text: "too deep"}
	if err := e.orch.IngestComment(context.Background(), c3); err == nil {
		t.Error("Reply beyond max depth must be rejected")
	}
	if _, err := e.store.GetComment("c3"); err == nil {
		t.Error("Rejected comment must not be stored")
	}
}

func TestSweep_ReprocessesFailedAndPending(t *testing.T) {
	e := newTestEnv(t)

	failed := &model.Post{ID: "p1", Author: "u1", Text: riskyText, CreatedAt: time.Now().UTC()}
	failed.Insights.ProcessingStatus = model.StatusFailed
	if err := e.store.CreatePost(failed); err != nil {
		t.Fatalf("CreatePost failed: %v", err)
	}

	pending := &model.Post{ID: "p2", Author: "u1", Text: "nice day today", CreatedAt: time.Now().UTC()}
	pending.Insights.ProcessingStatus = model.StatusPending
	if err := e.store.CreatePost(pending); err != nil {
		t.Fatalf("CreatePost failed: %v", err)
	}

	sweeper := NewSweeper(e.orch, e.cfg.Sweep, e.orch.logger)
	if err := sweeper.Run(context.Background()); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	for _, id := range []string{"p1", "p2"} {
		got, _ := e.store.GetPost(id)
		if got.Insights.ProcessingStatus != "" {
			t.Errorf("Swept post %s must complete, got %q", id, got.Insights.ProcessingStatus)
		}
	}
}

func TestSweep_FreshInProgressLeftAlone(t *testing.T) {
	e := newTestEnv(t)

	startedAt := time.Now().UTC()
	running := &model.Post{ID: "p1", Author: "u1", Text: riskyText, CreatedAt: startedAt}
	running.Insights.ProcessingStatus = model.StatusInProgress
	running.Insights.ProcessingStartedAt = &startedAt
	if err := e.store.CreatePost(running); err != nil {
		t.Fatalf("CreatePost failed: %v", err)
	}

	sweeper := NewSweeper(e.orch, e.cfg.Sweep, e.orch.logger)
	if err := sweeper.Run(context.Background()); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	got, _ := e.store.GetPost("p1")
	if got.Insights.ProcessingStatus != model.StatusInProgress {
		t.Errorf("Fresh in_progress item must not be swept, got %q", got.Insights.ProcessingStatus)
	}
}

func TestSweep_StaleInProgressReprocessed(t *testing.T) {
	e := newTestEnv(t)

	startedAt := time.Now().UTC().Add(-time.Hour)
	stalled := &model.Post{ID: "p1", Author: "u1", Text: riskyText, CreatedAt: startedAt}
	stalled.Insights.ProcessingStatus = model.StatusInProgress
	stalled.Insights.ProcessingStartedAt = &startedAt
	if err := e.store.CreatePost(stalled); err != nil {
		t.Fatalf("CreatePost failed: %v", err)
	}

	sweeper := NewSweeper(e.orch, e.cfg.Sweep, e.orch.logger)
	if err := sweeper.Run(context.Background()); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	got, _ := e.store.GetPost("p1")
	if got.Insights.ProcessingStatus != "" {
		t.Errorf("Stale in_progress item must be reprocessed, got %q", got.Insights.ProcessingStatus)
	}
}
