package store

import (
	"testing"
	"time"

	"github.com/veracity-social/veracity/internal/docstore"
	"github.com/veracity-social/veracity/internal/model"
)

func newTestStore() *Store {
	return New(docstore.NewMemoryStore())
}

func TestStore_PostRoundTrip(t *testing.T) {
	s := newTestStore()

	post := &model.Post{
		ID:        "p1",
		Author:    "u1",
		Text:      "hello world",
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Insights:  model.Insights{ProcessingStatus: model.StatusPending},
	}
	if err := s.CreatePost(post); err != nil {
		t.Fatalf("CreatePost failed: %v", err)
	}

	got, err := s.GetPost("p1")
	if err != nil {
		t.Fatalf("GetPost failed: %v", err)
	}
	if got.Text != "hello world" || got.Author != "u1" {
		t.Errorf("Post fields lost in round trip: %+v", got)
	}
	if got.Insights.ProcessingStatus != model.StatusPending {
		t.Errorf("Expected pending status, got %q", got.Insights.ProcessingStatus)
	}
}

func TestStore_PatchInsightsIsPartial(t *testing.T) {
	s := newTestStore()

	post := &model.Post{ID: "p1", Author: "u1", Text: "t", CreatedAt: time.Now().UTC()}
	post.Insights.ProcessingStatus = model.StatusInProgress
	if err := s.CreatePost(post); err != nil {
		t.Fatalf("CreatePost failed: %v", err)
	}

	claims := []model.Claim{{ID: "p1-c0", Text: "a claim", Type: model.ClaimTypeFact}}
	if err := s.PatchPostInsights("p1", docstore.Patch{"claims": claims}); err != nil {
		t.Fatalf("PatchPostInsights failed: %v", err)
	}

	got, _ := s.GetPost("p1")
	if len(got.Insights.Claims) != 1 {
		t.Fatalf("Expected 1 claim, got %d", len(got.Insights.Claims))
	}
	if got.Insights.ProcessingStatus != model.StatusInProgress {
		t.Error("Untouched insights field was overwritten by partial patch")
	}
}

func TestStore_StatusClearedByDelete(t *testing.T) {
	s := newTestStore()

	post := &model.Post{ID: "p1", Author: "u1", Text: "t", CreatedAt: time.Now().UTC()}
	post.Insights.ProcessingStatus = model.StatusInProgress
	if err := s.CreatePost(post); err != nil {
		t.Fatalf("CreatePost failed: %v", err)
	}

	if err := s.PatchPostInsights("p1", docstore.Patch{
		"processing_status": docstore.Delete,
	}); err != nil {
		t.Fatalf("PatchPostInsights failed: %v", err)
	}

	got, _ := s.GetPost("p1")
	if got.Insights.ProcessingStatus != "" {
		t.Errorf("Expected status cleared, got %q", got.Insights.ProcessingStatus)
	}
}

func TestStore_ListSharesOf(t *testing.T) {
	s := newTestStore()

	now := time.Now().UTC()
	original := &model.Post{ID: "orig", Author: "u1", Text: "original", CreatedAt: now}
	repost := &model.Post{ID: "r1", Author: "u2", RepostOf: "orig", CreatedAt: now.Add(time.Second)}
	quote := &model.Post{ID: "q1", Author: "u3", Text: "my take", QuoteOf: "orig", CreatedAt: now.Add(2 * time.Second)}
	unrelated := &model.Post{ID: "p2", Author: "u4", Text: "other", CreatedAt: now}

	for _, p := range []*model.Post{original, repost, quote, unrelated} {
		if err := s.CreatePost(p); err != nil {
			t.Fatalf("CreatePost failed: %v", err)
		}
	}

	shares, err := s.ListSharesOf("orig")
	if err != nil {
		t.Fatalf("ListSharesOf failed: %v", err)
	}
	if len(shares) != 2 {
		t.Fatalf("Expected 2 shares, got %d", len(shares))
	}
	ids := map[string]bool{}
	for _, sh := range shares {
		ids[sh.ID] = true
	}
	if !ids["r1"] || !ids["q1"] {
		t.Errorf("Wrong shares returned: %v", ids)
	}
}

func TestStore_FindContribution(t *testing.T) {
	s := newTestStore()

	rec := &model.ContributionRecord{
		ID: "row1", UserID: "u1", Type: model.ContributionPost,
		Value: 0.6, SourceID: "p1", CreatedAt: time.Now().UTC(),
	}
	if err := s.CreateContribution(rec); err != nil {
		t.Fatalf("CreateContribution failed: %v", err)
	}

	found, err := s.FindContribution("u1", "p1", model.ContributionPost)
	if err != nil {
		t.Fatalf("FindContribution failed: %v", err)
	}
	if found == nil || found.ID != "row1" {
		t.Errorf("Expected row1, got %+v", found)
	}

	// Different type is a different contribution
	found, err = s.FindContribution("u1", "p1", model.ContributionComment)
	if err != nil {
		t.Fatalf("FindContribution failed: %v", err)
	}
	if found != nil {
		t.Errorf("Expected no match for different type, got %+v", found)
	}
}

func TestStore_ListContributionsSince(t *testing.T) {
	s := newTestStore()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, at := range []time.Time{base, base.AddDate(0, 0, 10), base.AddDate(0, 0, 20)} {
		rec := &model.ContributionRecord{
			ID: string(rune('a' + i)), UserID: "u1", Type: model.ContributionPost,
			Value: 0.5, SourceID: string(rune('x' + i)), CreatedAt: at,
		}
		if err := s.CreateContribution(rec); err != nil {
			t.Fatalf("CreateContribution failed: %v", err)
		}
	}

	recent, err := s.ListContributions("u1", base.AddDate(0, 0, 5))
	if err != nil {
		t.Fatalf("ListContributions failed: %v", err)
	}
	if len(recent) != 2 {
		t.Errorf("Expected 2 records since cutoff, got %d", len(recent))
	}

	all, err := s.ListContributions("u1", time.Time{})
	if err != nil {
		t.Fatalf("ListContributions failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("Expected 3 lifetime records, got %d", len(all))
	}
}

func TestStore_PutTrustScoreUpsert(t *testing.T) {
	s := newTestStore()

	ts := &model.TrustScore{UserID: "u1", Score: 50, UpdatedAt: time.Now().UTC()}
	if err := s.PutTrustScore(ts); err != nil {
		t.Fatalf("PutTrustScore (create) failed: %v", err)
	}

	ts.Score = 62.5
	if err := s.PutTrustScore(ts); err != nil {
		t.Fatalf("PutTrustScore (update) failed: %v", err)
	}

	got, err := s.GetTrustScore("u1")
	if err != nil {
		t.Fatalf("GetTrustScore failed: %v", err)
	}
	if got.Score != 62.5 {
		t.Errorf("Expected score 62.5 after upsert, got %v", got.Score)
	}

	missing, err := s.GetTrustScore("nobody")
	if err != nil {
		t.Fatalf("GetTrustScore failed: %v", err)
	}
	if missing != nil {
		t.Errorf("Expected nil for unknown user, got %+v", missing)
	}
}
