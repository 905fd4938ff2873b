package search

import (
	"context"

	"github.com/rubiojr/logsearch/pkg/core"
)

// ResolvePage executes a single windowed query for the requested page.
//
// The returned page never holds more than MaxRows records and its StartIndex
// is always page*maxRows. TotalCount comes from the response, so an empty
// page may still report a non-zero total.
func (e *Engine) ResolvePage(ctx context.Context, c core.SearchCriteria) (*core.LogPage, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return e.pageAt(ctx, c, e.primary(c), c.Start())
}

// pageAt fetches maxRows records starting at start in the request's order.
func (e *Engine) pageAt(ctx context.Context, c core.SearchCriteria, primary string, start int64) (*core.LogPage, error) {
	q := e.baseQuery(c).
		OrderBy(e.order(primary, direction(c))...).
		Window(start, c.MaxRows)

	res, err := e.run(ctx, "page", q)
	if err != nil {
		return nil, core.SearchFailure("page query failed", err)
	}

	records := res.Records
	if len(records) > c.MaxRows {
		records = records[:c.MaxRows]
	}
	return &core.LogPage{
		Records:    records,
		StartIndex: start,
		TotalCount: res.Total,
		PageSize:   c.MaxRows,
	}, nil
}

// ResolveLastPage returns the final page of the result set without knowing
// its size up front. It reads the first maxRows records in the opposite
// order, keeps the ones that belong to the last page and reverses them back
// into the requested order.
//
// For a total T and page size S the page starts at floor(T/S)*S and holds
// T mod S records. When T is a non-zero multiple of S the last page is the
// full page starting at T-S.
func (e *Engine) ResolveLastPage(ctx context.Context, c core.SearchCriteria, primaryTimeField string) (*core.LogPage, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if primaryTimeField == "" {
		primaryTimeField = e.timeField
	}

	q := e.baseQuery(c).
		OrderBy(e.order(primaryTimeField, direction(c).Flip())...).
		Window(0, c.MaxRows)

	res, err := e.run(ctx, "last page", q)
	if err != nil {
		return nil, core.SearchFailure("last page query failed", err)
	}

	page := &core.LogPage{TotalCount: res.Total, PageSize: c.MaxRows}
	if res.Total <= 0 {
		return page, nil
	}

	size := int64(c.MaxRows)
	start := (res.Total / size) * size
	keep := res.Total - start
	if keep == 0 {
		start = res.Total - size
		keep = size
	}
	records := res.Records
	if int64(len(records)) > keep {
		records = records[:keep]
	}

	page.StartIndex = start
	page.Records = reversed(records)
	return page, nil
}

// Tail returns the last numberRows records of a single log file in
// chronological order. Both the host and file filters are required and the
// row count is capped at the engine's MaxTailRows.
func (e *Engine) Tail(ctx context.Context, c core.SearchCriteria) (*core.LogPage, error) {
	if c.Filter(core.FieldHost) == "" {
		return nil, core.InvalidRequest("host", "is required to tail a file")
	}
	if c.Filter(core.FieldFile) == "" {
		return nil, core.InvalidRequest("file", "is required to tail a file")
	}

	rows := c.NumberRows
	if rows <= 0 {
		rows = core.DefaultRows
	}
	if rows > e.maxTailRows {
		rows = e.maxTailRows
	}

	q := e.baseQuery(c).
		OrderBy(e.order(e.timeField, core.Descending)...).
		Window(0, rows)
	res, err := e.run(ctx, "tail", q)
	if err != nil {
		return nil, core.SearchFailure("tail query failed", err)
	}

	records := res.Records
	if len(records) > rows {
		records = records[:rows]
	}
	start := res.Total - int64(len(records))
	if start < 0 {
		start = 0
	}
	return &core.LogPage{
		Records:    reversed(records),
		StartIndex: start,
		TotalCount: res.Total,
		PageSize:   rows,
	}, nil
}
