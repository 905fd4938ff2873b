package search

import (
	"context"

	"github.com/rubiojr/logsearch/pkg/core"
	"github.com/rubiojr/logsearch/pkg/query"
)

// Scroll returns the records immediately before and/or after the anchor
// record named by c.ID, always in ascending (logTime, sequenceNumber) order.
//
// Neighbors are limited to the anchor's host and component so scrolling
// stays within one log stream. A missing anchor yields an empty result and
// no error: the record may have been removed from the index.
func (e *Engine) Scroll(ctx context.Context, c core.SearchCriteria) ([]core.LogRecord, error) {
	if c.ID == "" {
		return nil, core.InvalidRequest("id", "is required to scroll")
	}
	count := c.NumberRows
	if count <= 0 {
		count = core.DefaultRows
	}

	q := (&query.Query{Collection: e.collection}).
		Where(query.Eq(core.FieldID, c.ID)).
		Window(0, 1)
	res, err := e.run(ctx, "scroll anchor", q)
	if err != nil {
		return nil, core.SearchFailure("anchor query failed", err)
	}
	if len(res.Records) == 0 {
		e.logger.Debugf("scroll anchor %s is no longer indexed", c.ID)
		return []core.LogRecord{}, nil
	}
	anchor := res.Records[0]

	if anchor.Host != "" {
		c = c.WithFilter(core.FieldHost, anchor.Host)
	}
	if anchor.Component != "" {
		c = c.WithFilter(core.FieldComponent, anchor.Component)
	}

	var before, after []core.LogRecord
	if c.ScrollType != core.ScrollAfter {
		if before, err = e.neighbors(ctx, c, anchor, core.Descending, count); err != nil {
			return nil, err
		}
	}
	if c.ScrollType != core.ScrollBefore {
		if after, err = e.neighbors(ctx, c, anchor, core.Ascending, count); err != nil {
			return nil, err
		}
	}

	switch c.ScrollType {
	case core.ScrollBefore:
		return reversed(before), nil
	case core.ScrollAfter:
		return after, nil
	}
	out := make([]core.LogRecord, 0, len(before)+len(after)+1)
	out = append(out, reversed(before)...)
	out = append(out, anchor)
	return append(out, after...), nil
}

// neighbors fetches up to count records next to anchor. Descending walks
// towards older records, ascending towards newer ones; results come back in
// walking order.
func (e *Engine) neighbors(ctx context.Context, c core.SearchCriteria, anchor core.LogRecord, dir core.SortDirection, count int) ([]core.LogRecord, error) {
	q := e.baseQuery(c)
	step := "scroll after"
	if dir == core.Descending {
		step = "scroll before"
		q.Where(
			query.Range(core.FieldSeqNum, nil, anchor.SequenceNumber-1),
			query.Range(e.timeField, nil, anchor.LogTime),
		)
	} else {
		q.Where(
			query.Range(core.FieldSeqNum, anchor.SequenceNumber+1, nil),
			query.Range(e.timeField, anchor.LogTime, nil),
		)
	}
	q.OrderBy(e.order(e.timeField, dir)...).Window(0, count)

	res, err := e.run(ctx, step, q)
	if err != nil {
		return nil, core.SearchFailure("scroll query failed", err)
	}
	return res.Records, nil
}
