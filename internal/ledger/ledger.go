// Package ledger records scored contributions as append-only rows and
// recomputes per-user aggregates by range query. Rows are never mutated:
// the 30-day window decays naturally as queries move forward in time, with
// no expiry job.
package ledger

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/veracity-social/veracity/internal/model"
	"github.com/veracity-social/veracity/internal/store"
)

// Aggregates are the recomputed rolling and lifetime totals for one user.
type Aggregates struct {
	WindowTotal    float64
	WindowCount    int
	WindowByDomain map[model.ClaimDomain]float64
	LifetimeTotal  float64
	LifetimeCount  int
}

// Ledger is the contribution ledger.
type Ledger struct {
	store      *store.Store
	windowDays int
	logger     *slog.Logger
	nowFunc    func() time.Time
}

// New creates a ledger over the typed store.
func New(s *store.Store, windowDays int, logger *slog.Logger) *Ledger {
	if windowDays <= 0 {
		windowDays = 30
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{store: s, windowDays: windowDays, logger: logger, nowFunc: time.Now}
}

// Record appends one contribution row. It is idempotent on
// (user, source, type): recording the same contribution twice leaves
// exactly one row. Returns true when a new row was written.
func (l *Ledger) Record(userID string, typ model.ContributionType, value float64, domain model.ClaimDomain, sourceID string) (bool, error) {
	existing, err := l.store.FindContribution(userID, sourceID, typ)
	if err != nil {
		return false, fmt.Errorf("idempotency check: %w", err)
	}
	if existing != nil {
		l.logger.Debug("contribution already recorded",
			"user_id", userID, "source_id", sourceID, "type", typ)
		return false, nil
	}

	rec := &model.ContributionRecord{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      typ,
		Value:     value,
		Domain:    domain,
		SourceID:  sourceID,
		CreatedAt: l.nowFunc().UTC(),
	}
	if err := l.store.CreateContribution(rec); err != nil {
		return false, fmt.Errorf("append contribution: %w", err)
	}
	return true, nil
}

// Aggregates recomputes the user's rolling-window and lifetime totals from
// the ledger rows.
func (l *Ledger) Aggregates(userID string) (*Aggregates, error) {
	all, err := l.store.ListContributions(userID, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("list contributions: %w", err)
	}

	cutoff := l.nowFunc().UTC().AddDate(0, 0, -l.windowDays)
	agg := &Aggregates{WindowByDomain: make(map[model.ClaimDomain]float64)}
	for _, rec := range all {
		agg.LifetimeTotal += rec.Value
		agg.LifetimeCount++
		if !rec.CreatedAt.Before(cutoff) {
			agg.WindowTotal += rec.Value
			agg.WindowCount++
			agg.WindowByDomain[rec.Domain] += rec.Value
		}
	}
	return agg, nil
}
