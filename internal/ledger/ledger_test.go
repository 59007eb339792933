package ledger

import (
	"testing"
	"time"

	"github.com/veracity-social/veracity/internal/docstore"
	"github.com/veracity-social/veracity/internal/model"
	"github.com/veracity-social/veracity/internal/store"
)

func newTestLedger(now time.Time) (*Ledger, *store.Store) {
	st := store.New(docstore.NewMemoryStore())
	l := New(st, 30, nil)
	l.nowFunc = func() time.Time { return now }
	return l, st
}

func TestRecord_Idempotent(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	l, st := newTestLedger(now)

	recorded, err := l.Record("u1", model.ContributionPost, 0.6, model.DomainHealth, "p1")
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if !recorded {
		t.Error("First record must write a row")
	}

	// Same user+source+type again: no second row.
	recorded, err = l.Record("u1", model.ContributionPost, 0.9, model.DomainHealth, "p1")
	if err != nil {
		t.Fatalf("Second record failed: %v", err)
	}
	if recorded {
		t.Error("Duplicate record must be a no-op")
	}

	rows, err := st.ListContributions("u1", time.Time{})
	if err != nil {
		t.Fatalf("ListContributions failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("Expected exactly one ledger row, got %d", len(rows))
	}
	if rows[0].Value != 0.6 {
		t.Errorf("Original row must be untouched, got value %v", rows[0].Value)
	}
}

func TestRecord_DifferentSourcesAreSeparate(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	l, st := newTestLedger(now)

	mustRecord := func(typ model.ContributionType, sourceID string) {
		t.Helper()
		if _, err := l.Record("u1", typ, 0.5, model.DomainGeneral, sourceID); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}
	mustRecord(model.ContributionPost, "p1")
	mustRecord(model.ContributionPost, "p2")
	mustRecord(model.ContributionComment, "c1")

	rows, _ := st.ListContributions("u1", time.Time{})
	if len(rows) != 3 {
		t.Errorf("Expected 3 distinct rows, got %d", len(rows))
	}
}

func TestAggregates_WindowVsLifetime(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	l, _ := newTestLedger(now)

	// Two rows inside the 30-day window, one outside.
	steps := []struct {
		daysAgo int
		value   float64
		domain  model.ClaimDomain
		source  string
	}{
		{5, 0.8, model.DomainHealth, "p1"},
		{20, 0.4, model.DomainFinance, "p2"},
		{45, 0.9, model.DomainHealth, "p3"},
	}
	for _, s := range steps {
		l.nowFunc = func() time.Time { return now.AddDate(0, 0, -s.daysAgo) }
		if _, err := l.Record("u1", model.ContributionPost, s.value, s.domain, s.source); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	l.nowFunc = func() time.Time { return now }
	agg, err := l.Aggregates("u1")
	if err != nil {
		t.Fatalf("Aggregates failed: %v", err)
	}

	if agg.LifetimeCount != 3 {
		t.Errorf("Expected lifetime count 3, got %d", agg.LifetimeCount)
	}
	if diff := agg.LifetimeTotal - 2.1; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("Expected lifetime total 2.1, got %v", agg.LifetimeTotal)
	}
	if agg.WindowCount != 2 {
		t.Errorf("Expected window count 2, got %d", agg.WindowCount)
	}
	if diff := agg.WindowTotal - 1.2; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("Expected window total 1.2, got %v", agg.WindowTotal)
	}
	if diff := agg.WindowByDomain[model.DomainHealth] - 0.8; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("Expected health window total 0.8, got %v", agg.WindowByDomain[model.DomainHealth])
	}
}

func TestAggregates_EmptyUser(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	l, _ := newTestLedger(now)

	agg, err := l.Aggregates("nobody")
	if err != nil {
		t.Fatalf("Aggregates failed: %v", err)
	}
	if agg.LifetimeCount != 0 || agg.WindowCount != 0 {
		t.Errorf("Expected empty aggregates, got %+v", agg)
	}
}
