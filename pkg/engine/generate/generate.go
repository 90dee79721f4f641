// Package generate orchestrates candidate-pick generation: it walks an
// ordered chain of model backends, prompts each with the merged game
// contexts, and returns the first structurally valid batch of candidates.
package generate

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/rrajkowski/pickline/pkg/engine/gamectx"
	"github.com/rrajkowski/pickline/pkg/engine/llm"
	"github.com/rrajkowski/pickline/pkg/engine/metrics"
	"github.com/rrajkowski/pickline/pkg/pick"
)

// Params are the externally supplied instruction parameters for one
// generation run. The engine passes them through to the prompt untouched.
type Params struct {
	TargetCount  int    // how many picks to ask for
	RiskProfile  string // e.g. "conservative", "aggressive"
	Instructions string // free-form extra guidance
}

// Config controls chain behavior.
type Config struct {
	// PerCallTimeout bounds each backend call independently of the outer
	// context. Zero disables the bound.
	PerCallTimeout time.Duration
	SystemPrompt   string
}

// DefaultConfig returns the standard generation settings.
func DefaultConfig() Config {
	return Config{
		PerCallTimeout: 90 * time.Second,
		SystemPrompt:   defaultSystemPrompt,
	}
}

// Attempt records one backend call in an Outcome.
type Attempt struct {
	Backend  string
	Duration time.Duration
	Err      error
}

// Outcome reports how a generation run went. An exhausted chain is a
// reported outcome, not an error: the caller sees an empty candidate slice
// and every attempt that led there.
type Outcome struct {
	Backend   string // backend that produced the batch, empty when exhausted
	Attempts  []Attempt
	Exhausted bool
	// Unmatched counts parsed candidates referencing contests outside the
	// provided batch; they are dropped before validation.
	Unmatched int
}

// Generator runs the backend fallback chain.
type Generator struct {
	chain   []llm.Backend
	cfg     Config
	metrics *metrics.PipelineMetrics
}

// NewGenerator builds a generator over an ordered backend chain.
func NewGenerator(chain []llm.Backend, cfg Config) *Generator {
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = defaultSystemPrompt
	}
	return &Generator{chain: chain, cfg: cfg, metrics: metrics.Default()}
}

// Generate prompts the chain with the given contexts. Backends are tried
// strictly in order; the first whose response parses into at least one
// candidate wins and later backends are never called. An empty context
// batch short-circuits to an empty result.
func (g *Generator) Generate(ctx context.Context, contexts []gamectx.GameContext, params Params) ([]pick.Candidate, Outcome) {
	var outcome Outcome
	if len(contexts) == 0 {
		outcome.Exhausted = true
		return nil, outcome
	}

	prompt := buildPrompt(contexts, params)

	for _, backend := range g.chain {
		start := time.Now()
		candidates, unmatched, err := g.tryBackend(ctx, backend, prompt, contexts)
		elapsed := time.Since(start)

		outcome.Attempts = append(outcome.Attempts, Attempt{
			Backend:  backend.Name(),
			Duration: elapsed,
			Err:      err,
		})

		if err != nil {
			g.metrics.RecordBackend(backend.Name(), "error", elapsed.Seconds())
			log.Printf("[GEN] backend %s failed after %s: %v", backend.Name(), elapsed.Round(time.Millisecond), err)
			continue
		}

		g.metrics.RecordBackend(backend.Name(), "ok", elapsed.Seconds())
		for _, c := range candidates {
			g.metrics.RecordCandidate(c.Sport, string(c.Market))
		}
		outcome.Backend = backend.Name()
		outcome.Unmatched = unmatched
		return candidates, outcome
	}

	outcome.Exhausted = true
	return nil, outcome
}

func (g *Generator) tryBackend(ctx context.Context, backend llm.Backend, prompt string, contexts []gamectx.GameContext) ([]pick.Candidate, int, error) {
	callCtx := ctx
	if g.cfg.PerCallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.cfg.PerCallTimeout)
		defer cancel()
	}

	response, err := backend.Complete(callCtx, prompt, g.cfg.SystemPrompt)
	if err != nil {
		return nil, 0, err
	}

	candidates, unmatched, err := parseCandidates(response, contexts)
	if err != nil {
		return nil, 0, err
	}
	if len(candidates) == 0 {
		return nil, 0, fmt.Errorf("response parsed to zero usable candidates")
	}
	return candidates, unmatched, nil
}
