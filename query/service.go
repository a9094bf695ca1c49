package query

import (
	"context"
	"time"

	"github.com/hupe1980/urldex"
	"github.com/hupe1980/urldex/core"
	"github.com/hupe1980/urldex/index"
	"github.com/hupe1980/urldex/normalize"
)

// DatasetInfo is one dataset containing the queried domain.
type DatasetInfo struct {
	DatasetID   core.DatasetID
	URLCountEst *int64 // nil without a pre-aggregate store
}

// DomainResult answers datasets-of-domain.
type DomainResult struct {
	Domain   string
	DomainID core.DomainID
	Found    bool
	Datasets []DatasetInfo
}

// URLItem is one URL of a page.
type URLItem struct {
	URLID int64
	URL   string
}

// URLsResult answers urls-of-(domain, dataset).
type URLsResult struct {
	Domain     string
	DatasetID  core.DatasetID
	TotalEst   *int64  // nil without a pre-aggregate store
	Items      []URLItem
	NextOffset *uint64 // nil when no further page can exist
}

// Service executes the two query operations against a Loader.
type Service struct {
	loader  *Loader
	cfg     urldex.Config
	logger  *urldex.Logger
	metrics urldex.MetricsCollector
}

// NewService creates a query service.
func NewService(loader *Loader, cfg urldex.Config, logger *urldex.Logger, metrics urldex.MetricsCollector) *Service {
	if logger == nil {
		logger = urldex.NoopLogger()
	}
	if metrics == nil {
		metrics = urldex.NoopMetricsCollector{}
	}
	return &Service{loader: loader, cfg: cfg, logger: logger, metrics: metrics}
}

// MaxLimit returns the configured page-size ceiling.
func (s *Service) MaxLimit() int { return s.cfg.MaxLimit }

// resolveDomain maps a domain string to its verified dictionary position.
// The resolver may return a false candidate on a hash collision; reading the
// dictionary string at the candidate position and comparing rejects it.
func resolveDomain(state *VersionState, domain string) (core.DomainID, bool) {
	id, ok := state.Resolver.Lookup(domain)
	if !ok {
		return 0, false
	}
	stored, ok := state.Dict.Domain(id)
	if !ok || stored != domain {
		return 0, false
	}
	return id, true
}

// DatasetsOf returns the datasets containing domain. An unknown domain is an
// empty result, not an error.
func (s *Service) DatasetsOf(ctx context.Context, domain string) (DomainResult, error) {
	started := time.Now()
	result, err := s.datasetsOf(ctx, domain)
	s.metrics.RecordDomainQuery(time.Since(started), err)
	s.logger.LogQuery(ctx, "datasets_of", domain, len(result.Datasets), err)
	return result, err
}

func (s *Service) datasetsOf(_ context.Context, domain string) (DomainResult, error) {
	state, err := s.loader.State()
	if err != nil {
		return DomainResult{}, err
	}

	result := DomainResult{Domain: domain}

	id, ok := resolveDomain(state, domain)
	if !ok {
		return result, nil
	}
	result.DomainID = id
	result.Found = true

	for _, dataset := range state.Membership.Datasets(id) {
		result.Datasets = append(result.Datasets, DatasetInfo{DatasetID: dataset})
	}
	return result, nil
}

// URLsOf returns one page of URLs for (domain, dataset). Pagination is
// consistent as long as the same version serves all pages; each request pins
// the version for its duration.
//
// On deadline expiry the accumulated page is returned with a NextOffset, so
// callers can resume; a row group is never half-consumed into a page.
func (s *Service) URLsOf(ctx context.Context, domain string, dataset core.DatasetID, offset uint64, limit int) (URLsResult, error) {
	started := time.Now()
	result, err := s.urlsOf(ctx, domain, dataset, offset, limit)
	s.metrics.RecordURLQuery(len(result.Items), time.Since(started), err)
	s.logger.LogQuery(ctx, "urls_of", domain, len(result.Items), err)
	return result, err
}

func (s *Service) urlsOf(ctx context.Context, domain string, dataset core.DatasetID, offset uint64, limit int) (URLsResult, error) {
	result := URLsResult{Domain: domain, DatasetID: dataset}

	if limit > s.cfg.MaxLimit {
		limit = s.cfg.MaxLimit
	}
	if limit == 0 {
		next := offset
		result.NextOffset = &next
		return result, nil
	}
	if limit < 0 {
		return result, urldex.ErrInputMalformed
	}

	state, err := s.loader.State()
	if err != nil {
		return result, err
	}

	domainID, ok := resolveDomain(state, domain)
	if !ok {
		return result, nil
	}

	key := index.PostingsKey{DomainID: domainID, DatasetID: dataset}
	shard, err := s.loader.shard(state, key.Shard(state.Postings.NumShards()))
	if err != nil {
		return result, err
	}
	if shard == nil {
		return result, nil
	}
	locators, found, err := shard.Lookup(key)
	if err != nil || !found {
		return result, err
	}

	// Traverse locators in payload order; skip until offset is consumed,
	// then accumulate up to limit rows and stop early.
	var (
		skipped  uint64
		deadline bool
	)
	for _, loc := range locators {
		if len(result.Items) >= limit {
			break
		}
		if ctx.Err() != nil {
			deadline = true
			break
		}

		rows, err := s.loader.page(ctx, state, loc.FileID, loc.RowGroup)
		if err != nil {
			return result, err
		}

		for _, row := range rows {
			// Filter on the exact domain string, not the id: correct even if
			// a historical dictionary rebuild shifted ids.
			if row.Domain != domain {
				continue
			}
			if skipped < offset {
				skipped++
				continue
			}
			if len(result.Items) >= limit {
				break
			}
			result.Items = append(result.Items, URLItem{
				URLID: row.URLID,
				URL:   normalize.Reconstruct(row.Scheme, row.Host, row.PathQuery),
			})
		}
	}

	if len(result.Items) == limit || deadline {
		next := offset + uint64(len(result.Items))
		result.NextOffset = &next
	}
	return result, nil
}
