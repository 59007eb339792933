package cli

import (
	"fmt"
	"log/slog"

	"github.com/veracity-social/veracity/internal/agent"
	"github.com/veracity-social/veracity/internal/cache"
	"github.com/veracity-social/veracity/internal/docstore"
	"github.com/veracity-social/veracity/internal/extract"
	"github.com/veracity-social/veracity/internal/factcheck"
	"github.com/veracity-social/veracity/internal/ledger"
	"github.com/veracity-social/veracity/internal/model"
	"github.com/veracity-social/veracity/internal/pipeline"
	"github.com/veracity-social/veracity/internal/store"
	"github.com/veracity-social/veracity/internal/thread"
	"github.com/veracity-social/veracity/internal/triage"
	"github.com/veracity-social/veracity/internal/trust"
	"github.com/veracity-social/veracity/internal/value"
	"github.com/veracity-social/veracity/internal/worker"
)

// app bundles the wired pipeline and its cleanup.
type app struct {
	cfg   *model.Config
	store *store.Store
	orch  *pipeline.Orchestrator
}

func (a *app) Close() error {
	return a.store.Close()
}

// buildApp wires the full pipeline from configuration. The agent may be
// disabled entirely; every stage then runs on its deterministic fallback.
func buildApp(cfg *model.Config) (*app, error) {
	docs, err := openDocstore(cfg.Store)
	if err != nil {
		return nil, err
	}
	st := store.New(docs)
	log := slog.Default()

	ag, err := agent.New(agent.ConfigFromModel(cfg.Agent))
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("create agent: %w", err)
	}

	var searchAgent agent.SearchAgent
	if sa, ok := ag.(agent.SearchAgent); ok && cfg.Agent.SearchModel != "" {
		searchAgent = sa
	}

	var verdicts cache.Cache
	if cfg.Cache.Enabled {
		verdicts = cache.NewLayeredCache(cfg.Cache.MemoryTTL, cfg.Cache.Dir, cfg.Cache.DiskTTL)
	}

	var limiter *worker.Limiter
	if cfg.Agent.RatePerSec > 0 {
		limiter = worker.NewLimiter(cfg.Agent.RatePerSec, cfg.Agent.RateBurst)
	}

	deps := pipeline.Deps{
		Store:   st,
		Triage:  triage.New(ag, cfg.Triage, log),
		Extract: extract.New(ag, cfg.Extract, log),
		Checker: factcheck.New(ag, searchAgent, verdicts, limiter, cfg.Verify, log),
		Ledger:  ledger.New(st, cfg.Ledger.WindowDays, log),
		Trust:   trust.New(st, cfg.Trust, log),
		Threads: thread.New(st, cfg.Comments.MaxDepth),
	}
	if ag != nil {
		deps.Scorer = value.NewAgentScorer(ag)
		deps.Analyzer = value.NewAgentDiscussionAnalyzer(ag)
	}

	return &app{
		cfg:   cfg,
		store: st,
		orch:  pipeline.New(deps, cfg, log),
	}, nil
}

func openDocstore(cfg model.StoreConfig) (docstore.Store, error) {
	switch cfg.Driver {
	case "memory":
		return docstore.NewMemoryStore(), nil
	case "sqlite", "":
		docs, err := docstore.NewSQLiteStore(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return docs, nil
	default:
		return nil, fmt.Errorf("unknown store driver: %s (supported: sqlite, memory)", cfg.Driver)
	}
}
