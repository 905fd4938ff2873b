package search

import (
	"context"
	"time"

	"github.com/rubiojr/logsearch/pkg/core"
	"github.com/rubiojr/logsearch/pkg/query"
)

// ResolveKeywordPage finds the page holding the nearest record matching the
// keyword, searching forward from the page after the current one or
// backward from the page before it. The returned page is a normal page of
// the result set (without the keyword filter) that contains the match.
//
// The index can filter by keyword and sort by time but cannot report the
// absolute offset of a record, so the offset is derived in steps:
//
//  1. Fetch the boundary record at the edge of the already seen window.
//  2. Collect the records sharing the boundary timestamp that were already
//     seen, so they are not matched again.
//  3. Fetch the first keyword match from the boundary in the search
//     direction: the target.
//  4. Count the records that precede the target's timestamp in the
//     canonical order.
//  5. Add the target's rank inside its own timestamp group.
//  6. Align the resulting offset down to a page boundary and fetch that page.
//
// Steps 2 and 5 only refine the result; their failures are logged and
// degrade precision. Failures of the other steps abort with a search
// failure. A missing boundary or target is reported as not found.
func (e *Engine) ResolveKeywordPage(ctx context.Context, c core.SearchCriteria) (*core.LogPage, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if c.Keyword == "" {
		return nil, core.InvalidRequest("keyword", "is required")
	}

	forward := c.KeywordType == core.KeywordForward
	if !forward && c.Page == 0 {
		return nil, core.NotFound("no page before the first one to search for %q", c.Keyword)
	}

	canonical := direction(c)
	searchDir := canonical
	boundaryIndex := int64(c.Page+1) * int64(c.MaxRows)
	if !forward {
		searchDir = canonical.Flip()
		boundaryIndex = int64(c.Page)*int64(c.MaxRows) - 1
	}

	boundary, err := e.recordAt(ctx, c, boundaryIndex)
	if err != nil {
		return nil, err
	}
	if boundary == nil {
		return nil, core.NotFound("keyword %q not found", c.Keyword)
	}

	excluded := e.seenTies(ctx, c, *boundary, searchDir)

	q := e.baseQuery(c)
	if searchDir == core.Descending {
		q.Where(query.Range(e.timeField, timeBound(c.From), boundary.LogTime))
	} else {
		q.Where(query.Range(e.timeField, boundary.LogTime, timeBound(c.To)))
	}
	if len(excluded) > 0 {
		q.Where(query.NotIn(core.FieldID, excluded...))
	}
	q.Keyword = c.Keyword
	q.OrderBy(e.order(e.timeField, searchDir)...).Window(0, 1)

	res, err := e.run(ctx, "keyword target", q)
	if err != nil {
		return nil, core.SearchFailure("keyword query failed", err)
	}
	if len(res.Records) == 0 {
		return nil, core.NotFound("keyword %q not found", c.Keyword)
	}
	target := res.Records[0]

	index, err := e.indexOf(ctx, c, target)
	if err != nil {
		return nil, err
	}
	e.logger.Debugf("keyword %q matched %s at index %d", c.Keyword, target.ID, index)
	return e.pageAt(ctx, c, e.timeField, alignDown(index, c.MaxRows))
}

// ResolveSourceLogPage returns the page containing the record whose id is
// the request's SourceLogID.
func (e *Engine) ResolveSourceLogPage(ctx context.Context, c core.SearchCriteria) (*core.LogPage, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if c.SourceLogID == "" {
		return nil, core.InvalidRequest("sourceLogId", "is required")
	}

	q := e.baseQuery(c).Where(query.Eq(core.FieldID, c.SourceLogID)).Window(0, 1)
	res, err := e.run(ctx, "source log", q)
	if err != nil {
		return nil, core.SearchFailure("source log query failed", err)
	}
	if len(res.Records) == 0 {
		return nil, core.NotFound("log %q not found", c.SourceLogID)
	}

	index, err := e.indexOf(ctx, c, res.Records[0])
	if err != nil {
		return nil, err
	}
	return e.pageAt(ctx, c, e.timeField, alignDown(index, c.MaxRows))
}

// recordAt returns the record at the absolute index in canonical order, or
// nil when the result set is shorter.
func (e *Engine) recordAt(ctx context.Context, c core.SearchCriteria, index int64) (*core.LogRecord, error) {
	q := e.baseQuery(c).
		OrderBy(e.order(e.timeField, direction(c))...).
		Window(index, 1)
	res, err := e.run(ctx, "keyword boundary", q)
	if err != nil {
		return nil, core.SearchFailure("boundary query failed", err)
	}
	if len(res.Records) == 0 {
		return nil, nil
	}
	r := res.Records[0]
	return &r, nil
}

// seenTies returns the ids of records sharing the boundary's timestamp that
// come before the boundary when walking in dir. The boundary itself is never
// excluded. Failures degrade to an empty set.
func (e *Engine) seenTies(ctx context.Context, c core.SearchCriteria, boundary core.LogRecord, dir core.SortDirection) []any {
	q := e.baseQuery(c).
		Where(
			query.Eq(e.timeField, boundary.LogTime),
			query.NotIn(core.FieldID, boundary.ID),
		).
		OrderBy(e.order(e.timeField, dir)...).
		Window(0, e.tieLimit)

	res, err := e.run(ctx, "tie exclusion", q)
	if err != nil {
		e.logger.Warnf("tie exclusion query failed, keyword window may be off: %v", err)
		return nil
	}
	if res.Total > int64(e.tieLimit) {
		e.logger.Warnf("%d records share timestamp %s, only %d considered", res.Total, boundary.LogTime.Format(time.RFC3339Nano), e.tieLimit)
	}

	var ids []any
	for _, r := range res.Records {
		if tieBefore(r, boundary, dir) {
			ids = append(ids, r.ID)
		}
	}
	return ids
}

// tieBefore reports whether a precedes b, both sharing a timestamp, when
// walking in dir.
func tieBefore(a, b core.LogRecord, dir core.SortDirection) bool {
	var less bool
	switch {
	case a.SequenceNumber != b.SequenceNumber:
		less = a.SequenceNumber < b.SequenceNumber
	default:
		less = a.ID < b.ID
	}
	if dir == core.Descending {
		return !less && a.ID != b.ID
	}
	return less
}

// indexOf returns the absolute 0-based position of r in the canonical order
// of the request: the number of records with an earlier timestamp plus r's
// rank among the records sharing its timestamp.
func (e *Engine) indexOf(ctx context.Context, c core.SearchCriteria, r core.LogRecord) (int64, error) {
	q := e.baseQuery(c).Window(0, 0)
	if direction(c) == core.Descending {
		q.Where(query.Range(e.timeField, r.LogTime.Add(time.Millisecond), nil))
	} else {
		q.Where(query.Range(e.timeField, nil, r.LogTime.Add(-time.Millisecond)))
	}
	res, err := e.run(ctx, "count before", q)
	if err != nil {
		return 0, core.SearchFailure("count query failed", err)
	}
	return res.Total + e.tieRank(ctx, c, r), nil
}

// tieRank returns the position of r among the records sharing its timestamp,
// ordered by the canonical tie-breakers. The order is total, so the rank is
// stable across calls. Failures degrade to rank 0.
func (e *Engine) tieRank(ctx context.Context, c core.SearchCriteria, r core.LogRecord) int64 {
	q := e.baseQuery(c).
		Where(query.Eq(e.timeField, r.LogTime)).
		OrderBy(e.order(e.timeField, direction(c))...).
		Window(0, e.tieLimit)

	res, err := e.run(ctx, "tie rank", q)
	if err != nil {
		e.logger.Warnf("tie rank query failed, keyword window may be off: %v", err)
		return 0
	}
	for i, t := range res.Records {
		if t.ID == r.ID {
			return int64(i)
		}
	}
	e.logger.Warnf("record %s not found among %d records sharing its timestamp", r.ID, res.Total)
	return 0
}

func alignDown(index int64, rows int) int64 {
	return (index / int64(rows)) * int64(rows)
}
