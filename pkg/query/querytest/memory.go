// Package querytest provides an in-memory query.Client for tests.
package querytest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rubiojr/logsearch/pkg/core"
	"github.com/rubiojr/logsearch/pkg/query"
)

// MemoryClient evaluates structured queries over an in-memory slice of
// records. It records every query it sees and can inject failures.
type MemoryClient struct {
	mu      sync.Mutex
	records map[string][]core.LogRecord
	queries []*query.Query

	// Intercept, when set, runs before each query with its 1-based call
	// number. A non-nil error is returned instead of executing the query.
	Intercept func(call int, q *query.Query) error
}

// NewMemoryClient returns a client holding records in the service collection.
func NewMemoryClient(records ...core.LogRecord) *MemoryClient {
	m := &MemoryClient{records: make(map[string][]core.LogRecord)}
	m.Add(core.CollectionService, records...)
	return m
}

// Add appends records to a collection.
func (m *MemoryClient) Add(collection string, records ...core.LogRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[collection] = append(m.records[collection], records...)
}

// Calls returns the number of queries received so far.
func (m *MemoryClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queries)
}

// Queries returns copies of the queries received so far.
func (m *MemoryClient) Queries() []*query.Query {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*query.Query, len(m.queries))
	for i, q := range m.queries {
		out[i] = q.Clone()
	}
	return out
}

func (m *MemoryClient) Query(ctx context.Context, q *query.Query) (*query.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.queries = append(m.queries, q.Clone())
	call := len(m.queries)
	intercept := m.Intercept
	all := append([]core.LogRecord(nil), m.records[q.Collection]...)
	m.mu.Unlock()

	if intercept != nil {
		if err := intercept(call, q); err != nil {
			return nil, err
		}
	}

	var matched []core.LogRecord
	for _, r := range all {
		if matches(r, q) {
			matched = append(matched, r)
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		for _, s := range q.Sort {
			a, _ := matched[i].Field(s.Field)
			b, _ := matched[j].Field(s.Field)
			c := compare(a, b)
			if c == 0 {
				continue
			}
			if s.Direction == core.Descending {
				return c > 0
			}
			return c < 0
		}
		return false
	})

	res := &query.Result{Total: int64(len(matched))}
	if len(q.Facets) > 0 {
		res.Facets = facets(matched, q.Facets)
	}

	start := q.Start
	if start > int64(len(matched)) {
		start = int64(len(matched))
	}
	end := start + int64(q.Rows)
	if end > int64(len(matched)) {
		end = int64(len(matched))
	}
	res.Records = append([]core.LogRecord(nil), matched[start:end]...)
	return res, nil
}

func matches(r core.LogRecord, q *query.Query) bool {
	if q.Keyword != "" && !strings.Contains(strings.ToLower(r.Message), strings.ToLower(q.Keyword)) {
		return false
	}
	for _, f := range q.Filters {
		v, _ := r.Field(f.Field)
		switch f.Op {
		case query.OpEq, query.OpIn:
			if !containsValue(f.Values, v) {
				return false
			}
		case query.OpNotIn:
			if containsValue(f.Values, v) {
				return false
			}
		case query.OpRange:
			if f.Low != nil && compare(v, f.Low) < 0 {
				return false
			}
			if f.High != nil && compare(v, f.High) > 0 {
				return false
			}
		}
	}
	return true
}

func containsValue(values []any, v any) bool {
	for _, candidate := range values {
		if compare(v, candidate) == 0 {
			return true
		}
	}
	return false
}

func facets(records []core.LogRecord, specs []string) map[string]*query.FacetNode {
	out := make(map[string]*query.FacetNode, len(specs))
	for _, spec := range specs {
		fields := strings.Split(spec, ",")
		root := &query.FacetNode{Name: spec}
		for _, r := range records {
			path := make([]string, len(fields))
			for i, f := range fields {
				v, _ := r.Field(strings.TrimSpace(f))
				path[i] = fmt.Sprint(v)
			}
			root.Add(1, path...)
		}
		root.SortChildren()
		out[spec] = root
	}
	return out
}

func compare(a, b any) int {
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Compare(tb)
		}
	}
	if na, ok := toInt(a); ok {
		if nb, ok := toInt(b); ok {
			switch {
			case na < nb:
				return -1
			case na > nb:
				return 1
			}
			return 0
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case int32:
		return int64(n), true
	}
	return 0, false
}
