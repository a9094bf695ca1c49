package ingest

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/hupe1980/urldex"
	"github.com/hupe1980/urldex/core"
	"github.com/hupe1980/urldex/normalize"
	"github.com/hupe1980/urldex/registry"
	"github.com/hupe1980/urldex/store"
	"golang.org/x/time/rate"
)

// BatchResult aggregates the outcome of one batch or one whole ingest. A
// single bad URL never aborts a batch; rejections are counted and reported
// in aggregate.
type BatchResult struct {
	Accepted   int
	Rejected   int
	Duplicates int
}

func (r *BatchResult) add(other BatchResult) {
	r.Accepted += other.Accepted
	r.Rejected += other.Rejected
	r.Duplicates += other.Duplicates
}

// Processor normalizes raw URLs and writes them to the partitioned store.
type Processor struct {
	registry *registry.Registry
	writer   *store.Writer
	tracker  *DuplicateTracker
	logger   *urldex.Logger
	metrics  urldex.MetricsCollector
	progress rate.Sometimes
}

// NewProcessor creates a Processor. tracker may be nil to disable duplicate
// tracking.
func NewProcessor(reg *registry.Registry, writer *store.Writer, tracker *DuplicateTracker, logger *urldex.Logger, metrics urldex.MetricsCollector) *Processor {
	if logger == nil {
		logger = urldex.NoopLogger()
	}
	if metrics == nil {
		metrics = urldex.NoopMetricsCollector{}
	}
	return &Processor{
		registry: reg,
		writer:   writer,
		tracker:  tracker,
		logger:   logger,
		metrics:  metrics,
		progress: rate.Sometimes{Interval: 5 * time.Second},
	}
}

// IngestBatch normalizes one batch of raw URLs into the store under the
// named dataset.
func (p *Processor) IngestBatch(ctx context.Context, dataset string, raws []string) (BatchResult, error) {
	started := time.Now()

	datasetID, err := p.registry.Resolve(dataset)
	if err != nil {
		return BatchResult{}, err
	}

	var result BatchResult
	rows := make([]store.Row, 0, len(raws))
	var newIDs []int64

	for _, raw := range raws {
		norm, err := normalize.Normalize(raw)
		if err != nil {
			result.Rejected++
			continue
		}

		urlID := core.URLID(raw)
		if p.tracker != nil {
			dup, err := p.tracker.IsDuplicate(dataset, urlID)
			if err != nil {
				return result, err
			}
			if dup {
				result.Duplicates++
				continue
			}
		}

		rows = append(rows, store.Row{
			DomainID:  int64(core.DomainHash(norm.Domain)),
			URLID:     urlID,
			Scheme:    norm.Scheme,
			Host:      norm.Host,
			PathQuery: norm.PathQuery(),
			Domain:    norm.Domain,
		})
		newIDs = append(newIDs, urlID)
		result.Accepted++
	}

	if len(rows) > 0 {
		if err := p.writer.Write(ctx, datasetID, rows); err != nil {
			return result, err
		}
		if p.tracker != nil {
			if _, err := p.tracker.Record(dataset, newIDs); err != nil {
				return result, err
			}
		}
	}

	p.metrics.RecordIngestBatch(result.Accepted, result.Rejected, time.Since(started))
	p.logger.LogIngestBatch(ctx, dataset, result.Accepted, result.Rejected)
	return result, nil
}

// Ingest drains a source into the store and flushes pending buffers.
func (p *Processor) Ingest(ctx context.Context, dataset string, src Source) (BatchResult, error) {
	var total BatchResult

	for {
		batch, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return total, err
		}

		result, err := p.IngestBatch(ctx, dataset, batch)
		total.add(result)
		if err != nil {
			return total, err
		}

		p.progress.Do(func() {
			p.logger.InfoContext(ctx, "ingest progress",
				"dataset", dataset,
				"accepted", total.Accepted,
				"rejected", total.Rejected,
				"duplicates", total.Duplicates,
			)
		})
	}

	return total, p.writer.Flush(ctx)
}
