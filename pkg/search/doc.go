// Package search turns log search requests into consistent, correctly
// ordered windows of log records.
//
// # Overview
//
// The index behind a query.Client can filter, sort by time and return a
// start/rows window, but it cannot seek to "the record with this id" or
// "the next record matching this keyword" by position. The Engine derives
// those positions with a short chain of auxiliary queries and always
// answers with the same core.LogPage shape.
//
// # Canonical order
//
// Records are ordered by the primary time field, then by sequence number,
// then by id, all in the request's direction (descending by default).
// Timestamps have millisecond resolution and are not unique; the sequence
// number assigned at ingest breaks ties, so the order is total and the
// reverse of a page is exactly the page read in the opposite direction.
//
// # Strategies
//
//   - ResolvePage: one windowed query at page*maxRows.
//   - ResolveLastPage: reads the first maxRows records in the flipped order
//     and keeps the ones that belong to the final page.
//   - ResolveKeywordPage: finds the page holding the nearest keyword match
//     before or after the current page.
//   - ResolveSourceLogPage: finds the page holding a given record id.
//   - Scroll: the neighbors of an anchor record, before, after or both.
//   - Tail: the last lines of one file on one host.
//   - Scan: the deprecated page-by-page keyword scan, cancellable through a
//     CancellationRegistry.
//
// Resolver wraps an Engine with a ResultMapper so that service logs and
// audit logs share one implementation.
//
// # Errors
//
// Every error returned is a *core.SearchError. Backend failures of the
// queries a result depends on are KindSearchFailure; a missing keyword,
// boundary or record is KindNotFound; inconsistent criteria are
// KindInvalidRequest and are rejected before any query runs. The
// tie-exclusion and tie-rank refinements of keyword resolution log a
// warning and degrade instead of failing.
//
// # Consistency
//
// The index is live. Sub-queries of one request run in sequence without a
// snapshot, so totals and derived offsets are best effort and may be off by
// the number of records ingested while a request resolves.
//
// # Usage
//
//	engine := search.NewEngine(index, search.Config{Collection: core.CollectionService})
//	logs := search.NewServiceResolver(engine)
//	criteria, err := core.ParseCriteria(r.URL.Query(), 10)
//	if err != nil {
//		// bad request
//	}
//	page, err := logs.Search(ctx, criteria)
package search
