package search

import (
	"context"
	"time"

	"github.com/rubiojr/logsearch/pkg/core"
	"github.com/rubiojr/logsearch/pkg/log"
	"github.com/rubiojr/logsearch/pkg/query"
)

// DefaultTieGroupLimit bounds how many same-timestamp records the keyword
// resolver fetches when excluding or ranking ties.
const DefaultTieGroupLimit = 1000

// DefaultMaxTailRows caps the number of rows a tail request may ask for.
const DefaultMaxTailRows = 100

// Config configures an Engine.
type Config struct {
	// Collection is the index collection every query targets.
	Collection string

	// TimeField is the primary time field. Defaults to core.FieldLogTime.
	TimeField string

	// TieGroupLimit caps same-timestamp group fetches. Defaults to
	// DefaultTieGroupLimit.
	TieGroupLimit int

	// MaxTailRows caps tail requests. Defaults to DefaultMaxTailRows.
	MaxTailRows int

	// Registry tracks cancellable scans. A private registry is created when nil.
	Registry *CancellationRegistry
}

// Engine resolves search criteria into pages of records by issuing one or
// more structured queries against a query.Client. Every method is a blocking
// sequence of round-trips; an Engine holds no per-request state and is safe
// for concurrent use.
type Engine struct {
	client      query.Client
	collection  string
	timeField   string
	tieLimit    int
	maxTailRows int
	registry    *CancellationRegistry
	logger      *log.Logger
}

// NewEngine creates an engine over client.
func NewEngine(client query.Client, cfg Config) *Engine {
	if cfg.Collection == "" {
		cfg.Collection = core.CollectionService
	}
	if cfg.TimeField == "" {
		cfg.TimeField = core.FieldLogTime
	}
	if cfg.TieGroupLimit <= 0 {
		cfg.TieGroupLimit = DefaultTieGroupLimit
	}
	if cfg.MaxTailRows <= 0 {
		cfg.MaxTailRows = DefaultMaxTailRows
	}
	if cfg.Registry == nil {
		cfg.Registry = NewCancellationRegistry()
	}
	return &Engine{
		client:      client,
		collection:  cfg.Collection,
		timeField:   cfg.TimeField,
		tieLimit:    cfg.TieGroupLimit,
		maxTailRows: cfg.MaxTailRows,
		registry:    cfg.Registry,
		logger:      log.ForService("search"),
	}
}

// Collection returns the collection the engine queries.
func (e *Engine) Collection() string {
	return e.collection
}

// TimeField returns the primary time field.
func (e *Engine) TimeField() string {
	return e.timeField
}

// Registry returns the cancellation registry used by Scan.
func (e *Engine) Registry() *CancellationRegistry {
	return e.registry
}

// baseQuery builds the collection, time range and field filters shared by
// every sub-query of a request.
func (e *Engine) baseQuery(c core.SearchCriteria) *query.Query {
	q := &query.Query{Collection: e.collection}
	if c.From != nil || c.To != nil {
		q.Where(query.Range(e.timeField, timeBound(c.From), timeBound(c.To)))
	}
	for _, field := range c.FilterFields() {
		values := c.Filters[field]
		if len(values) == 1 {
			q.Where(query.Eq(field, values[0]))
			continue
		}
		anys := make([]any, len(values))
		for i, v := range values {
			anys[i] = v
		}
		q.Where(query.In(field, anys...))
	}
	return q
}

func timeBound(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

// direction returns the canonical sort direction of a request.
func direction(c core.SearchCriteria) core.SortDirection {
	if c.SortType == "" {
		return core.Descending
	}
	return c.SortType
}

// order returns the sort list for primary in dir, followed by the cursor
// tie-breakers. All clauses share dir so reversing a page yields the
// opposite order exactly.
func (e *Engine) order(primary string, dir core.SortDirection) []query.Sort {
	sorts := []query.Sort{{Field: primary, Direction: dir}}
	if primary != e.timeField {
		sorts = append(sorts, query.Sort{Field: e.timeField, Direction: dir})
	}
	return append(sorts,
		query.Sort{Field: core.FieldSeqNum, Direction: dir},
		query.Sort{Field: core.FieldID, Direction: dir},
	)
}

func (e *Engine) primary(c core.SearchCriteria) string {
	if c.SortBy != "" {
		return c.SortBy
	}
	return e.timeField
}

// run executes q, logging the plan at debug level.
func (e *Engine) run(ctx context.Context, step string, q *query.Query) (*query.Result, error) {
	e.logger.Debugf("%s: %s", step, q)
	start := time.Now()
	res, err := e.client.Query(ctx, q)
	if err != nil {
		e.logger.Debugf("%s failed after %v: %v", step, time.Since(start), err)
		return nil, err
	}
	e.logger.Debugf("%s: %d records of %d in %v", step, len(res.Records), res.Total, time.Since(start))
	return res, nil
}

// Facets counts matching records grouped by each requested field. A comma
// separated field list requests a pivot.
func (e *Engine) Facets(ctx context.Context, c core.SearchCriteria, fields []string) (map[string]*query.FacetNode, error) {
	if len(fields) == 0 {
		return nil, core.InvalidRequest("field", "at least one facet field is required")
	}
	q := e.baseQuery(c).Window(0, 0)
	q.Facets = fields
	res, err := e.run(ctx, "facets", q)
	if err != nil {
		return nil, core.SearchFailure("facet query failed", err)
	}
	if res.Facets == nil {
		res.Facets = make(map[string]*query.FacetNode)
	}
	return res.Facets, nil
}

// Since returns up to limit records ingested after sequence number afterSeq
// that match the filters and keyword of c, in ingest order. It backs live
// following.
func (e *Engine) Since(ctx context.Context, c core.SearchCriteria, afterSeq int64, limit int) ([]core.LogRecord, error) {
	q := e.baseQuery(c).
		Where(query.Range(core.FieldSeqNum, afterSeq+1, nil)).
		OrderBy(query.Sort{Field: core.FieldSeqNum, Direction: core.Ascending}).
		Window(0, limit)
	q.Keyword = c.Keyword
	res, err := e.run(ctx, "since", q)
	if err != nil {
		return nil, core.SearchFailure("follow query failed", err)
	}
	return res.Records, nil
}

// Latest returns the limit most recent records matching the filters and
// keyword of c, oldest first.
func (e *Engine) Latest(ctx context.Context, c core.SearchCriteria, limit int) ([]core.LogRecord, error) {
	q := e.baseQuery(c).
		OrderBy(e.order(e.timeField, core.Descending)...).
		Window(0, limit)
	q.Keyword = c.Keyword
	res, err := e.run(ctx, "latest", q)
	if err != nil {
		return nil, core.SearchFailure("latest records query failed", err)
	}
	return reversed(res.Records), nil
}

// Matching returns the records among candidates that the index matches
// against the filters and keyword of c, in ingest order.
func (e *Engine) Matching(ctx context.Context, c core.SearchCriteria, candidates []core.LogRecord) ([]core.LogRecord, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	ids := make([]any, len(candidates))
	for i, r := range candidates {
		ids[i] = r.ID
	}
	q := e.baseQuery(c).
		Where(query.In(core.FieldID, ids...)).
		OrderBy(query.Sort{Field: core.FieldSeqNum, Direction: core.Ascending}).
		Window(0, len(candidates))
	q.Keyword = c.Keyword
	res, err := e.run(ctx, "matching", q)
	if err != nil {
		return nil, core.SearchFailure("match query failed", err)
	}
	return res.Records, nil
}

func reversed(records []core.LogRecord) []core.LogRecord {
	out := make([]core.LogRecord, len(records))
	for i, r := range records {
		out[len(records)-1-i] = r
	}
	return out
}

// LastSequence returns the highest sequence number in the collection, or 0
// when it is empty.
func (e *Engine) LastSequence(ctx context.Context) (int64, error) {
	q := (&query.Query{Collection: e.collection}).
		OrderBy(query.Sort{Field: core.FieldSeqNum, Direction: core.Descending}).
		Window(0, 1)
	res, err := e.run(ctx, "last sequence", q)
	if err != nil {
		return 0, core.SearchFailure("sequence query failed", err)
	}
	if len(res.Records) == 0 {
		return 0, nil
	}
	return res.Records[0].SequenceNumber, nil
}
