package consensus

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/rrajkowski/pickline/pkg/engine/metrics"
)

// Source is one third-party consensus provider. Implementations fetch raw
// rows; cleaning happens in the Normalizer.
type Source interface {
	// ID identifies the source in records, logs and metrics.
	ID() string
	// Fetch returns the source's current rows. It must honor ctx.
	Fetch(ctx context.Context) ([]Row, error)
}

// Collector fans out to every registered source concurrently and merges the
// normalized results. A failing source is logged and skipped; partial
// results are the normal output, not an error.
type Collector struct {
	normalizer *Normalizer
	sources    []Source
	timeout    time.Duration
	metrics    *metrics.PipelineMetrics
}

// NewCollector builds a collector over the given sources. perSourceTimeout
// bounds each fetch independently; zero disables the bound.
func NewCollector(normalizer *Normalizer, sources []Source, perSourceTimeout time.Duration) *Collector {
	return &Collector{
		normalizer: normalizer,
		sources:    sources,
		timeout:    perSourceTimeout,
		metrics:    metrics.Default(),
	}
}

// Collect fetches from all sources in parallel and returns the merged
// canonical records. The error count reports whole-source failures.
func (c *Collector) Collect(ctx context.Context) (records []Record, failed int) {
	type result struct {
		source  string
		records []Record
		dropped int
		err     error
	}

	results := make(chan result, len(c.sources))
	var wg sync.WaitGroup

	for _, src := range c.sources {
		wg.Add(1)
		go func(src Source) {
			defer wg.Done()

			fetchCtx := ctx
			cancel := context.CancelFunc(func() {})
			if c.timeout > 0 {
				fetchCtx, cancel = context.WithTimeout(ctx, c.timeout)
			}
			defer cancel()

			start := time.Now()
			rows, err := src.Fetch(fetchCtx)
			c.metrics.RecordSource(src.ID(), time.Since(start).Seconds(), err != nil)
			if err != nil {
				results <- result{source: src.ID(), err: err}
				return
			}

			recs, dropped := c.normalizer.Normalize(src.ID(), rows, time.Now())
			results <- result{source: src.ID(), records: recs, dropped: dropped}
		}(src)
	}

	wg.Wait()
	close(results)

	for res := range results {
		if res.err != nil {
			failed++
			log.Printf("[CONSENSUS] source %s failed: %v", res.source, res.err)
			continue
		}
		if res.dropped > 0 {
			log.Printf("[CONSENSUS] source %s: dropped %d malformed rows", res.source, res.dropped)
		}
		records = append(records, res.records...)
	}

	return records, failed
}
