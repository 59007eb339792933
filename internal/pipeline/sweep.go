package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/veracity-social/veracity/internal/metrics"
	"github.com/veracity-social/veracity/internal/model"
	"github.com/veracity-social/veracity/internal/worker"
)

// Sweeper periodically re-runs content stuck in pending, failed, or stale
// in_progress states. It is the crash-recovery half of the resumable
// pipeline: anything the orchestrator left behind gets another run.
type Sweeper struct {
	orch    *Orchestrator
	config  model.SweepConfig
	logger  *slog.Logger
	cron    *cron.Cron
	nowFunc func() time.Time
}

// NewSweeper creates a sweeper over the orchestrator.
func NewSweeper(orch *Orchestrator, config model.SweepConfig, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 4
	}
	if config.BatchLimit <= 0 {
		config.BatchLimit = 100
	}
	return &Sweeper{orch: orch, config: config, logger: logger, nowFunc: time.Now}
}

// Start schedules the sweep on its cron expression and returns. Call Stop
// to shut the scheduler down.
func (s *Sweeper) Start(ctx context.Context) error {
	s.cron = cron.New()
	_, err := s.cron.AddFunc(s.config.Schedule, func() {
		if err := s.Run(ctx); err != nil {
			s.logger.Error("sweep run failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule sweep %q: %w", s.config.Schedule, err)
	}
	s.cron.Start()
	s.logger.Info("sweep scheduled", "schedule", s.config.Schedule)
	return nil
}

// Stop halts the scheduler and waits for an in-flight run to finish.
func (s *Sweeper) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// Run executes one sweep pass immediately.
func (s *Sweeper) Run(ctx context.Context) error {
	metrics.SweepRuns.Inc()

	items, err := s.collect()
	if err != nil {
		return err
	}
	if len(items) == 0 {
		s.logger.Debug("sweep found nothing to do")
		return nil
	}
	s.logger.Info("sweep reprocessing", "items", len(items))

	pool := worker.NewPool(s.config.Concurrency)
	pool.Start()
	for _, item := range items {
		pool.Submit(&sweepJob{orch: s.orch, content: item})
	}
	for _, res := range pool.Wait() {
		if err := res.GetError(); err != nil {
			metrics.SweepItems.WithLabelValues("failed").Inc()
			s.logger.Warn("sweep item failed", "error", err)
		} else {
			metrics.SweepItems.WithLabelValues("completed").Inc()
		}
	}
	return nil
}

// collect gathers eligible content: anything pending or failed, plus
// in_progress items whose run started longer than StaleAfter ago (the
// owning process is presumed dead).
func (s *Sweeper) collect() ([]model.Content, error) {
	var items []model.Content
	cutoff := s.nowFunc().UTC().Add(-s.config.StaleAfter)

	for _, status := range []model.ProcessingStatus{model.StatusPending, model.StatusFailed, model.StatusInProgress} {
		posts, err := s.orch.deps.Store.ListPostsByStatus(status, s.config.BatchLimit)
		if err != nil {
			return nil, fmt.Errorf("list posts %s: %w", status, err)
		}
		for _, p := range posts {
			if status == model.StatusInProgress && !stale(&p.Insights, cutoff) {
				continue
			}
			items = append(items, p)
		}

		comments, err := s.orch.deps.Store.ListCommentsByStatus(status, s.config.BatchLimit)
		if err != nil {
			return nil, fmt.Errorf("list comments %s: %w", status, err)
		}
		for _, c := range comments {
			if status == model.StatusInProgress && !stale(&c.Insights, cutoff) {
				continue
			}
			items = append(items, c)
		}
	}
	return items, nil
}

func stale(ins *model.Insights, cutoff time.Time) bool {
	return ins.ProcessingStartedAt != nil && ins.ProcessingStartedAt.Before(cutoff)
}

// sweepJob reprocesses one unit of content inside the sweep pool. Parked
// shares go back through the share path so they inherit or reuse properly.
type sweepJob struct {
	orch    *Orchestrator
	content model.Content
}

type sweepResult struct{ err error }

func (r sweepResult) GetError() error { return r.err }

func (j *sweepJob) Execute(ctx context.Context) worker.Result {
	if post, ok := j.content.(*model.Post); ok && post.IsShare() {
		original, err := j.orch.deps.Store.GetPost(post.OriginalID())
		if err != nil {
			return sweepResult{err: fmt.Errorf("load original %s: %w", post.OriginalID(), err)}
		}
		if !isCompleted(&original.Insights) {
			// Original still unfinished; leave the share parked.
			return sweepResult{}
		}
		return sweepResult{err: j.orch.processShare(ctx, post, original)}
	}
	return sweepResult{err: j.orch.Process(ctx, j.content)}
}
