// Package runner coordinates the pick lifecycle pipeline: collect consensus,
// merge contexts, generate candidates, validate, persist, and periodically
// settle.
package runner

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/rrajkowski/pickline/pkg/engine/gamectx"
	"github.com/rrajkowski/pickline/pkg/engine/generate"
	"github.com/rrajkowski/pickline/pkg/engine/metrics"
	"github.com/rrajkowski/pickline/pkg/engine/policy"
	"github.com/rrajkowski/pickline/pkg/engine/settle"
	"github.com/rrajkowski/pickline/pkg/feeds/consensus"
	"github.com/rrajkowski/pickline/pkg/feeds/scores"
	"github.com/rrajkowski/pickline/pkg/feeds/teams"
	"github.com/rrajkowski/pickline/pkg/pick"
)

// Stage identifies one pipeline stage.
type Stage string

const (
	StageCollect  Stage = "collect"
	StageMerge    Stage = "merge"
	StageGenerate Stage = "generate"
	StageValidate Stage = "validate"
	StagePersist  Stage = "persist"
	StageSettle   Stage = "settle"
)

// StageResult records one stage execution inside a run.
type StageResult struct {
	Stage    Stage         `json:"stage"`
	Duration time.Duration `json:"duration"`
	Count    int           `json:"count"`
	Err      error         `json:"-"`
}

// RunSummary reports one generation run end to end.
type RunSummary struct {
	StartedAt     time.Time     `json:"started_at"`
	Duration      time.Duration `json:"duration"`
	Records       int           `json:"records"`
	FailedSources int           `json:"failed_sources"`
	Contexts      int           `json:"contexts"`
	Candidates    int           `json:"candidates"`
	Accepted      int           `json:"accepted"`
	Rejected      int           `json:"rejected"`
	StoreDupes    int           `json:"store_dupes"`
	Backend       string        `json:"backend,omitempty"`
	Stages        []StageResult `json:"stages"`
}

// PickStore is the slice of the store the runner needs.
type PickStore interface {
	Insert(ctx context.Context, p pick.Pick) (bool, error)
	ListPending(ctx context.Context, sport string) ([]pick.Pick, error)
}

// Callbacks let the daemon react to pipeline events without the engine
// knowing about transports.
type Callbacks struct {
	OnPickAccepted func(pick.Pick)
	OnRejection    func(policy.Rejection)
	OnSettlement   func(settle.Event)
	OnRunComplete  func(RunSummary)
	OnError        func(stage Stage, err error)
}

// Config controls the runner's loops.
type Config struct {
	Sports           []string
	GenerateInterval time.Duration
	SettleInterval   time.Duration
	Params           generate.Params
}

// DefaultConfig returns the standard loop settings.
func DefaultConfig() Config {
	return Config{
		GenerateInterval: 6 * time.Hour,
		SettleInterval:   30 * time.Minute,
	}
}

// Runner wires the pipeline components together.
type Runner struct {
	collector *consensus.Collector
	generator *generate.Generator
	validator *policy.Engine
	settler   *settle.Engine
	store     PickStore
	cfg       Config
	callbacks Callbacks
	metrics   *metrics.PipelineMetrics

	// Optional recent-result signals, see AttachHistory.
	history    HistoryStore
	scoresFeed scores.Provider
	resolver   *teams.Resolver

	mu      sync.RWMutex
	lastRun *RunSummary
}

// New builds a runner.
func New(collector *consensus.Collector, generator *generate.Generator, validator *policy.Engine, settler *settle.Engine, store PickStore, cfg Config, callbacks Callbacks) *Runner {
	if cfg.GenerateInterval <= 0 {
		cfg.GenerateInterval = 6 * time.Hour
	}
	if cfg.SettleInterval <= 0 {
		cfg.SettleInterval = 30 * time.Minute
	}
	return &Runner{
		collector: collector,
		generator: generator,
		validator: validator,
		settler:   settler,
		store:     store,
		cfg:       cfg,
		callbacks: callbacks,
		metrics:   metrics.Default(),
	}
}

// LastRun returns the most recent run summary, if any.
func (r *Runner) LastRun() *RunSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastRun
}

// RunOnce executes one full generation pass.
func (r *Runner) RunOnce(ctx context.Context) (RunSummary, error) {
	summary := RunSummary{StartedAt: time.Now().UTC()}
	defer func() {
		summary.Duration = time.Since(summary.StartedAt)
		r.mu.Lock()
		r.lastRun = &summary
		r.mu.Unlock()
	}()

	// Collect.
	records, failed := r.runStageCollect(ctx, &summary)
	summary.Records = len(records)
	summary.FailedSources = failed

	// Merge.
	contexts := r.runStageMerge(records, &summary)
	summary.Contexts = len(contexts)
	if len(contexts) == 0 {
		log.Printf("[RUN] no upcoming contests in window, nothing to generate")
		r.metrics.RecordRun("empty")
		r.complete(summary)
		return summary, nil
	}
	if r.history != nil {
		r.attachSignals(ctx, contexts, time.Now())
	}

	// Generate.
	candidates, outcome := r.runStageGenerate(ctx, contexts, &summary)
	summary.Candidates = len(candidates)
	summary.Backend = outcome.Backend
	if outcome.Exhausted {
		err := fmt.Errorf("all %d backends exhausted", len(outcome.Attempts))
		r.fail(StageGenerate, err)
		r.metrics.RecordRun("exhausted")
		r.complete(summary)
		return summary, nil
	}

	// Validate.
	accepted, rejected, err := r.runStageValidate(ctx, candidates, contexts, &summary)
	if err != nil {
		r.fail(StageValidate, err)
		r.metrics.RecordRun("error")
		return summary, err
	}
	summary.Rejected = len(rejected)
	for _, rej := range rejected {
		log.Printf("[RUN] rejected %s %s: %s (%s)", rej.Candidate.Game, rej.Candidate.Market, rej.Reason, rej.Detail)
		if r.callbacks.OnRejection != nil {
			r.callbacks.OnRejection(rej)
		}
	}

	// Persist.
	inserted, dupes := r.runStagePersist(ctx, accepted, &summary)
	summary.Accepted = inserted
	summary.StoreDupes = dupes

	r.metrics.RecordRun("ok")
	r.complete(summary)
	return summary, nil
}

// SettleOnce runs one settlement pass over every configured sport.
func (r *Runner) SettleOnce(ctx context.Context) int {
	start := time.Now()
	settled := 0
	for _, sport := range r.cfg.Sports {
		sum, err := r.settler.SettleSport(ctx, sport)
		if err != nil {
			r.fail(StageSettle, err)
			continue
		}
		settled += sum.Settled
		for _, ev := range sum.Events {
			if r.callbacks.OnSettlement != nil {
				r.callbacks.OnSettlement(ev)
			}
		}
	}
	r.metrics.RecordStage(string(StageSettle), time.Since(start).Seconds())
	return settled
}

// Start runs the generation and settlement loops until ctx is canceled.
// Both loops fire once immediately.
func (r *Runner) Start(ctx context.Context) {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(r.cfg.GenerateInterval)
		defer ticker.Stop()

		if _, err := r.RunOnce(ctx); err != nil {
			log.Printf("[RUN] generation run failed: %v", err)
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := r.RunOnce(ctx); err != nil {
					log.Printf("[RUN] generation run failed: %v", err)
				}
			}
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(r.cfg.SettleInterval)
		defer ticker.Stop()

		r.SettleOnce(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.SettleOnce(ctx)
			}
		}
	}()

	wg.Wait()
}

// --- Stage helpers ---

func (r *Runner) runStageCollect(ctx context.Context, summary *RunSummary) ([]consensus.Record, int) {
	start := time.Now()
	records, failed := r.collector.Collect(ctx)
	r.recordStage(summary, StageCollect, start, len(records), nil)
	return records, failed
}

func (r *Runner) runStageMerge(records []consensus.Record, summary *RunSummary) []gamectx.GameContext {
	start := time.Now()
	contexts := gamectx.Merge(records, time.Now())
	r.recordStage(summary, StageMerge, start, len(contexts), nil)
	return contexts
}

func (r *Runner) runStageGenerate(ctx context.Context, contexts []gamectx.GameContext, summary *RunSummary) ([]pick.Candidate, generate.Outcome) {
	start := time.Now()
	candidates, outcome := r.generator.Generate(ctx, contexts, r.cfg.Params)
	r.recordStage(summary, StageGenerate, start, len(candidates), nil)
	return candidates, outcome
}

func (r *Runner) runStageValidate(ctx context.Context, candidates []pick.Candidate, contexts []gamectx.GameContext, summary *RunSummary) ([]pick.Pick, []policy.Rejection, error) {
	start := time.Now()
	pending, err := r.store.ListPending(ctx, "")
	if err != nil {
		r.recordStage(summary, StageValidate, start, 0, err)
		return nil, nil, fmt.Errorf("runner: pending snapshot: %w", err)
	}
	accepted, rejected := r.validator.ValidateBatch(candidates, contexts, pending, time.Now())
	r.recordStage(summary, StageValidate, start, len(accepted), nil)
	return accepted, rejected, nil
}

func (r *Runner) runStagePersist(ctx context.Context, accepted []pick.Pick, summary *RunSummary) (inserted, dupes int) {
	start := time.Now()
	for _, p := range accepted {
		ok, err := r.store.Insert(ctx, p)
		if err != nil {
			r.fail(StagePersist, fmt.Errorf("insert %s: %w", p.ID, err))
			continue
		}
		if !ok {
			// Lost a race with a concurrent writer; the constraint wins.
			dupes++
			continue
		}
		inserted++
		log.Printf("[RUN] accepted %s", p.String())
		if r.callbacks.OnPickAccepted != nil {
			r.callbacks.OnPickAccepted(p)
		}
	}
	r.recordStage(summary, StagePersist, start, inserted, nil)
	return inserted, dupes
}

func (r *Runner) recordStage(summary *RunSummary, stage Stage, start time.Time, count int, err error) {
	d := time.Since(start)
	summary.Stages = append(summary.Stages, StageResult{Stage: stage, Duration: d, Count: count, Err: err})
	r.metrics.RecordStage(string(stage), d.Seconds())
}

func (r *Runner) fail(stage Stage, err error) {
	log.Printf("[RUN] %s: %v", stage, err)
	if r.callbacks.OnError != nil {
		r.callbacks.OnError(stage, err)
	}
}

func (r *Runner) complete(summary RunSummary) {
	if r.callbacks.OnRunComplete != nil {
		r.callbacks.OnRunComplete(summary)
	}
}
