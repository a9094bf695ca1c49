// Package urldex is an indexing-and-lookup engine for web-scale URL corpora.
//
// It answers two queries over a partitioned columnar URL lake:
//
//   - which datasets contain a given registrable domain
//   - the URLs of a (domain, dataset) pair, paginated
//
// The engine canonicalizes URLs, writes them to a partitioned parquet store,
// and builds a compound multi-file index per version: a sorted domain
// dictionary, a hash-based domain resolver, domain→dataset membership
// bitmaps, postings from (domain, dataset) to row-group locators, and a file
// registry. Versions are published atomically through a manifest; queries
// read the artifacts of exactly one loaded version per request.
package urldex
