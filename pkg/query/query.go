// Package query defines the structured query understood by every index
// backend and the Client capability the search layer consumes.
//
// A Query is a conjunction of filters plus an optional full-text keyword,
// an ordered sort list, a start/rows window and optional facet requests.
// Backends translate it into their own dialect (SQLite FTS5, OpenSearch DSL).
package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/rubiojr/logsearch/pkg/core"
)

// Op is a filter operator.
type Op int

const (
	OpEq Op = iota
	OpIn
	OpNotIn
	OpRange
)

func (o Op) String() string {
	switch o {
	case OpEq:
		return "="
	case OpIn:
		return "in"
	case OpNotIn:
		return "not in"
	case OpRange:
		return "range"
	}
	return "?"
}

// Filter restricts a logical field. Range bounds are inclusive; a nil bound
// is unbounded. Values are strings, int64 or time.Time.
type Filter struct {
	Field  string
	Op     Op
	Values []any
	Low    any
	High   any
}

// Eq matches field == value.
func Eq(field string, value any) Filter {
	return Filter{Field: field, Op: OpEq, Values: []any{value}}
}

// In matches any of values.
func In(field string, values ...any) Filter {
	return Filter{Field: field, Op: OpIn, Values: values}
}

// NotIn excludes every one of values.
func NotIn(field string, values ...any) Filter {
	return Filter{Field: field, Op: OpNotIn, Values: values}
}

// Range matches low <= field <= high.
func Range(field string, low, high any) Filter {
	return Filter{Field: field, Op: OpRange, Low: low, High: high}
}

func (f Filter) String() string {
	if f.Op == OpRange {
		return fmt.Sprintf("%s:[%v TO %v]", f.Field, bound(f.Low), bound(f.High))
	}
	return fmt.Sprintf("%s %s %v", f.Field, f.Op, f.Values)
}

func bound(v any) any {
	if v == nil {
		return "*"
	}
	return v
}

// Sort is a single sort clause.
type Sort struct {
	Field     string
	Direction core.SortDirection
}

// Query is a structured, backend-neutral search request.
type Query struct {
	Collection string
	// Keyword is matched as a phrase against the message field.
	Keyword string
	Filters []Filter
	Sort    []Sort
	Start   int64
	// Rows is the number of records to return; zero asks only for the count.
	Rows int
	// Facets lists fields to count by. A comma separated entry ("host,level")
	// requests a pivot and yields a nested tree.
	Facets []string
}

// Clone returns a deep enough copy that appending filters or sorts to the
// clone never aliases the original.
func (q *Query) Clone() *Query {
	c := *q
	c.Filters = append([]Filter(nil), q.Filters...)
	c.Sort = append([]Sort(nil), q.Sort...)
	c.Facets = append([]string(nil), q.Facets...)
	return &c
}

// Where appends filters and returns q.
func (q *Query) Where(filters ...Filter) *Query {
	q.Filters = append(q.Filters, filters...)
	return q
}

// OrderBy replaces the sort list and returns q.
func (q *Query) OrderBy(sorts ...Sort) *Query {
	q.Sort = append([]Sort(nil), sorts...)
	return q
}

// Window sets start and rows and returns q.
func (q *Query) Window(start int64, rows int) *Query {
	q.Start = start
	q.Rows = rows
	return q
}

func (q *Query) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "collection=%s", q.Collection)
	if q.Keyword != "" {
		fmt.Fprintf(&b, " keyword=%q", q.Keyword)
	}
	for _, f := range q.Filters {
		fmt.Fprintf(&b, " fq=%s", f)
	}
	for _, s := range q.Sort {
		fmt.Fprintf(&b, " sort=%s %s", s.Field, s.Direction)
	}
	fmt.Fprintf(&b, " start=%d rows=%d", q.Start, q.Rows)
	if len(q.Facets) > 0 {
		fmt.Fprintf(&b, " facets=%v", q.Facets)
	}
	return b.String()
}

// Result is what a backend returns for a Query.
type Result struct {
	Records []core.LogRecord
	// Total is the number of records matching the filters, ignoring the window.
	Total  int64
	Facets map[string]*FacetNode
}

// Client executes structured queries against a document index. It must be
// safe for concurrent use; every call is independent.
type Client interface {
	Query(ctx context.Context, q *Query) (*Result, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, q *Query) (*Result, error)

func (f ClientFunc) Query(ctx context.Context, q *Query) (*Result, error) {
	return f(ctx, q)
}
